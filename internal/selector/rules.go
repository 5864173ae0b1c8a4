package selector

import (
	"path"
	"regexp"
	"strings"
)

// Tier weights. Lower tier number means higher priority.
var tierWeights = [...]int{100, 80, 50, 30, 10}

const (
	tierCanonical = iota
	tierRuntime
	tierArchitecture
	tierTests
	tierGeneral
)

// Weight returns the ranking weight for a tier; out-of-range tiers get the
// generic-code weight.
func Weight(tier int) int {
	if tier < 0 || tier >= len(tierWeights) {
		return tierWeights[tierGeneral]
	}
	return tierWeights[tier]
}

type rule struct {
	match  *regexp.Regexp
	tier   int
	reason string
}

func r(tier int, expr, reason string) rule {
	return rule{match: regexp.MustCompile(expr), tier: tier, reason: reason}
}

// rules is evaluated in order; the first match wins.
var rules = []rule{
	r(tierCanonical, `(?i)^README\.md$`, "Primary project description"),
	r(tierCanonical, `(?i)^README\..+$`, "Project description"),
	r(tierCanonical, `(?i)^docs/README\.md$`, "Documentation overview"),
	r(tierCanonical, `(?i)^docs/overview\.md$`, "Architecture documentation"),
	r(tierCanonical, `(?i)^LICENSE(\..*)?$`, "Licensing"),
	r(tierCanonical, `(?i)^SECURITY\.md$`, "Security practices"),
	r(tierCanonical, `(?i)^CONTRIBUTING\.md$`, "Contribution guidelines"),
	r(tierCanonical, `(?i)^CODEOWNERS$`, "Ownership structure"),
	r(tierCanonical, `(?i)^\.github/workflows/.+\.ya?ml$`, "CI/CD pipeline"),
	r(tierCanonical, `(?i)^Dockerfile$`, "Container config"),
	r(tierCanonical, `(?i)^docker-compose\.ya?ml$`, "Container orchestration"),

	// Node.js
	r(tierRuntime, `^package\.json$`, "Dependencies and scripts"),
	r(tierRuntime, `^next\.config\.(js|mjs|ts)$`, "Next.js configuration"),
	r(tierRuntime, `^tsconfig\.json$`, "TypeScript config"),
	r(tierRuntime, `^app/layout\.tsx$`, "Next.js App Router root"),
	r(tierRuntime, `^app/page\.tsx$`, "Next.js homepage"),
	r(tierRuntime, `^pages/_app\.tsx$`, "Next.js Pages Router"),
	r(tierRuntime, `^pages/index\.tsx$`, "Next.js Pages Router homepage"),
	r(tierRuntime, `^src/index\.(ts|js)$`, "Entry point"),
	r(tierRuntime, `^src/server\.(ts|js)$`, "Server entry point"),
	r(tierRuntime, `^server\.(ts|js)$`, "Server entry point"),
	// Python
	r(tierRuntime, `^pyproject\.toml$`, "Python project config"),
	r(tierRuntime, `^requirements\.txt$`, "Python dependencies"),
	r(tierRuntime, `^Pipfile$`, "Pipenv config"),
	r(tierRuntime, `^setup\.py$`, "Python package config"),
	r(tierRuntime, `^setup\.cfg$`, "Python package config"),
	r(tierRuntime, `^main\.py$`, "Python entry point"),
	r(tierRuntime, `^app\.py$`, "Python entry point"),
	// Go / Rust
	r(tierRuntime, `^go\.mod$`, "Go module dependencies"),
	r(tierRuntime, `^main\.go$`, "Go entry point"),
	r(tierRuntime, `^cmd/[^/]+/main\.go$`, "Go command entry point"),
	r(tierRuntime, `^Cargo\.toml$`, "Rust crate manifest"),
	r(tierRuntime, `^src/main\.rs$`, "Rust entry point"),
	// Infrastructure
	r(tierRuntime, `^terraform/[^/]+\.tf$`, "Terraform config"),
	r(tierRuntime, `^serverless\.(yml|ts)$`, "Serverless config"),
	r(tierRuntime, `^cdk\.json$`, "AWS CDK config"),
	// Database
	r(tierRuntime, `^prisma/schema\.prisma$`, "Database schema"),

	r(tierArchitecture, `^docs/[^/]+\.md$`, "Documentation"),
	r(tierArchitecture, `^docs/adr/[^/]+\.md$`, "Architecture decision"),
	r(tierArchitecture, `^docs/decisions/[^/]+\.md$`, "Architecture decision"),
	r(tierArchitecture, `^openapi\.ya?ml$`, "API specification"),
	r(tierArchitecture, `^swagger\.json$`, "API specification"),
	r(tierArchitecture, `^\.env\.example$`, "Environment variables"),
	r(tierArchitecture, `^config/[^/]+\.(yml|json)$`, "Configuration"),
	r(tierArchitecture, `(?i)^src/.*routes.*\.(ts|js)$`, "Route definitions"),
	r(tierArchitecture, `(?i)^src/.*controllers.*\.(ts|js)$`, "Controller logic"),
	r(tierArchitecture, `(?i)^src/.*services.*\.(ts|js)$`, "Service layer"),
	r(tierArchitecture, `^app/api/.*/route\.(ts|js)$`, "API route"),
	r(tierArchitecture, `^lib/[^/]+\.(ts|js)$`, "Library code"),
	r(tierArchitecture, `^api/.+\.proto$`, "API definition"),

	r(tierTests, `^jest\.config\.(js|ts|mjs)$`, "Test configuration"),
	r(tierTests, `^vitest\.config\.(js|ts|mjs)$`, "Test configuration"),
	r(tierTests, `^pytest\.ini$`, "Python test configuration"),
	r(tierTests, `^playwright\.config\.(js|ts)$`, "E2E test configuration"),
	r(tierTests, `\.test\.(ts|tsx|js|jsx)$`, "Test file"),
	r(tierTests, `\.spec\.(ts|tsx|js|jsx)$`, "Test file"),
	r(tierTests, `_test\.py$`, "Python test file"),
	r(tierTests, `test_.*\.py$`, "Python test file"),
	r(tierTests, `_test\.go$`, "Go test file"),
}

// classify assigns a tier and reason to a candidate path.
func classify(p string) (int, string) {
	for _, rl := range rules {
		if rl.match.MatchString(p) {
			return rl.tier, rl.reason
		}
	}
	return tierGeneral, "General code"
}

var ignoredDirs = map[string]struct{}{
	"node_modules": {},
	"dist":         {},
	"build":        {},
	".next":        {},
	".venv":        {},
	"__pycache__":  {},
	"coverage":     {},
	"vendor":       {},
	"logs":         {},
	"tmp":          {},
	".git":         {},
	".cache":       {},
	".turbo":       {},
}

var ignoredExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {}, ".svg": {}, ".ico": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".zip": {}, ".tar": {}, ".gz": {}, ".rar": {}, ".7z": {},
	".pt": {}, ".onnx": {}, ".bin": {}, ".pkl": {}, ".h5": {},
	".exe": {}, ".dmg": {}, ".app": {}, ".msi": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
	".mp3": {}, ".mp4": {}, ".wav": {}, ".avi": {}, ".mov": {},
	".sqlite": {}, ".db": {},
	".lock": {},
}

var textExtensions = map[string]struct{}{
	".md": {}, ".txt": {}, ".rst": {},
	".json": {}, ".yml": {}, ".yaml": {}, ".toml": {}, ".ini": {},
	".ts": {}, ".tsx": {}, ".js": {}, ".jsx": {}, ".mjs": {}, ".cjs": {},
	".py": {}, ".pyi": {},
	".go": {}, ".rs": {}, ".java": {}, ".kt": {}, ".cs": {}, ".rb": {}, ".php": {},
	".sh": {}, ".ps1": {}, ".sql": {}, ".tf": {}, ".hcl": {},
	".html": {}, ".css": {}, ".scss": {},
	".prisma": {}, ".graphql": {}, ".proto": {},
	".mod": {},
}

var specialFilenames = map[string]struct{}{
	"Dockerfile": {},
	"Makefile":   {},
	"Procfile":   {},
	"CODEOWNERS": {},
	"LICENSE":    {},
}

func extension(p string) string {
	base := path.Base(p)
	i := strings.LastIndexByte(base, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(base[i:])
}

func inIgnoredDir(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if _, ok := ignoredDirs[part]; ok {
			return true
		}
	}
	return false
}

func depth(p string) int {
	return strings.Count(p, "/")
}
