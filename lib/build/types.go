package build

import (
	"time"

	"github.com/c2h5oh/datasize"

	"github.com/kilnproject/kiln/lib/recipe"
)

// Statuses a build record moves through. Ready and failed are terminal
// and never regress.
const (
	StatusPending   = "pending"
	StatusResolving = "resolving"
	StatusBuilding  = "building"
	StatusVerifying = "verifying"
	StatusReady     = "ready"
	StatusFailed    = "failed"
)

// Request describes one bake.
type Request struct {
	// Recipe is the validated build configuration.
	Recipe *recipe.Recipe
	// ContextDir is the payload directory. Defaults to the current directory.
	ContextDir string
	// Tag overrides the derived content-addressed tag.
	Tag string
	// SkipVerify drops the post-build probes.
	SkipVerify bool
	// Offline skips base digest resolution; the plan uses the recipe
	// reference as written and the engine relies on its local cache.
	Offline bool
	// NoCache disables engine layer caching.
	NoCache bool
	// Pull re-pulls the base image even when cached.
	Pull bool
	// Timeout bounds the whole bake. Zero applies the manager default.
	Timeout time.Duration
}

// Build is the persisted record of one bake.
type Build struct {
	ID     string `json:"id"`
	Status string `json:"status"`

	Tag     string `json:"tag,omitempty"`
	ImageID string `json:"image_id,omitempty"`

	BaseRef    string `json:"base_ref,omitempty"`
	BaseDigest string `json:"base_digest,omitempty"`

	RecipeFingerprint string `json:"recipe_fingerprint,omitempty"`

	ContextDigest string `json:"context_digest,omitempty"`
	ContextFiles  int    `json:"context_files,omitempty"`
	ContextBytes  int64  `json:"context_bytes,omitempty"`

	// PlanDigest is the sha256 of the rendered plan.
	PlanDigest string `json:"plan_digest,omitempty"`

	Engine        string `json:"engine,omitempty"`
	EngineVersion string `json:"engine_version,omitempty"`

	StageMillis    map[string]int64 `json:"stage_millis,omitempty"`
	DurationMillis int64            `json:"duration_millis,omitempty"`

	Error string `json:"error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// HumanContextSize renders the payload size for people.
func (b *Build) HumanContextSize() string {
	return datasize.ByteSize(b.ContextBytes).HumanReadable()
}
