package engine

// NewPodman returns the podman CLI engine. Saves use the docker-archive
// format so the tarball stays readable by the same loaders as docker's.
func NewPodman() Engine {
	return newCLIEngine("podman", "podman", dialect{
		versionArgs: []string{"version", "--format", "{{.Version}}"},
		saveArgs: func(tag, destPath string) []string {
			return []string{"save", "--format", "docker-archive", "-o", destPath, tag}
		},
	})
}
