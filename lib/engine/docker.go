package engine

// NewDocker returns the docker CLI engine.
func NewDocker() Engine {
	return newCLIEngine("docker", "docker", dialect{
		versionArgs: []string{"version", "--format", "{{.Client.Version}}"},
		saveArgs: func(tag, destPath string) []string {
			return []string{"save", "-o", destPath, tag}
		},
	})
}
