package selector

import (
	"regexp"
	"strings"

	"github.com/seanblong/reporubric/pkg/models"
)

var nextConfig = regexp.MustCompile(`^next\.config\.(js|mjs|ts)$`)

// DetectStack guesses the technology stack from marker files. It only looks
// at paths, never content, and never affects selection.
func DetectStack(tree []models.TreeEntry) []string {
	paths := make(map[string]struct{}, len(tree))
	hasNextConfig, hasManage, hasTF := false, false, false
	for _, e := range tree {
		paths[e.Path] = struct{}{}
		switch {
		case nextConfig.MatchString(e.Path):
			hasNextConfig = true
		case e.Path == "manage.py" || strings.HasSuffix(e.Path, "/manage.py"):
			hasManage = true
		case strings.HasSuffix(e.Path, ".tf"):
			hasTF = true
		}
	}
	has := func(p ...string) bool {
		for _, x := range p {
			if _, ok := paths[x]; ok {
				return true
			}
		}
		return false
	}

	detected := []string{}
	if hasNextConfig || has("app/layout.tsx", "pages/_app.tsx") {
		detected = append(detected, "next.js")
	} else if has("package.json") {
		detected = append(detected, "react")
	}
	if has("requirements.txt", "pyproject.toml") {
		if hasManage {
			detected = append(detected, "django")
		}
		detected = append(detected, "python")
	}
	if has("go.mod") {
		detected = append(detected, "go")
	}
	if has("Cargo.toml") {
		detected = append(detected, "rust")
	}
	if has("pom.xml", "build.gradle", "build.gradle.kts") {
		detected = append(detected, "java")
	}
	if has("Dockerfile", "docker-compose.yml", "docker-compose.yaml") {
		detected = append(detected, "docker")
	}
	if hasTF {
		detected = append(detected, "terraform")
	}
	if has("tsconfig.json") {
		detected = append(detected, "typescript")
	}
	if has("prisma/schema.prisma") {
		detected = append(detected, "prisma")
	}
	return detected
}
