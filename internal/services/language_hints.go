package services

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"strings"
)

// languageHints maps language keys to focus points added to analysis and review prompts.
var languageHints = map[string]string{
	"go": `Go-specific checks:
- Check for unhandled errors (err != nil patterns)
- Verify proper defer/close usage for resources
- Check goroutine leaks and race conditions
- Ensure proper context.Context propagation
- Validate struct tag correctness`,

	"python": `Python-specific checks:
- Check for proper exception handling (avoid bare except)
- Verify type hints consistency
- Check for mutable default arguments
- Validate proper resource cleanup (with statements)
- Check for potential injection vulnerabilities in string formatting`,

	"javascript": `JavaScript/TypeScript-specific checks:
- Check for potential XSS vulnerabilities
- Verify proper async/await and Promise error handling
- Check for memory leaks (event listeners, intervals)
- Validate proper null/undefined checks
- Check for unused imports and variables`,

	"typescript": `JavaScript/TypeScript-specific checks:
- Check for proper TypeScript type safety (avoid 'any')
- Verify proper async/await and Promise error handling
- Check for memory leaks (event listeners, intervals)
- Validate proper null/undefined checks
- Check for unused imports and variables`,

	"java": `Java-specific checks:
- Check for proper exception handling and resource management (try-with-resources)
- Verify null safety (Optional usage, @Nullable annotations)
- Check for thread safety issues
- Validate proper equals/hashCode implementations
- Check for potential SQL injection in query construction`,

	"rust": `Rust-specific checks:
- Check for proper error handling (Result/Option usage)
- Verify ownership and borrowing patterns
- Check for unsafe blocks necessity
- Validate proper lifetime annotations
- Check for potential panics (unwrap usage)`,

	"ruby": `Ruby-specific checks:
- Check for proper exception handling
- Verify security of eval/send usage
- Check for N+1 queries in ActiveRecord
- Validate input sanitization
- Check for proper use of symbols vs strings`,

	"php": `PHP-specific checks:
- Check for SQL injection vulnerabilities
- Verify proper input validation and sanitization
- Check for XSS vulnerabilities
- Validate proper error handling
- Check for type safety issues`,

	"swift": `Swift-specific checks:
- Check for proper optional handling (avoid force unwrapping)
- Verify memory management (retain cycles, weak references)
- Check for proper error handling with do-catch
- Validate thread safety with actors/locks
- Check for proper Codable implementations`,

	"kotlin": `Kotlin-specific checks:
- Check for proper null safety usage
- Verify coroutine scope and cancellation handling
- Check for proper sealed class/when exhaustiveness
- Validate data class usage
- Check for potential Java interop issues`,

	"c": `C/C++-specific checks:
- Check for memory leaks and buffer overflows
- Verify pointer safety and null dereferences
- Check for integer overflow vulnerabilities
- Validate proper resource cleanup
- Check for undefined behavior`,

	"cpp": `C/C++-specific checks:
- Check for memory leaks and smart pointer usage
- Verify RAII patterns for resource management
- Check for buffer overflows and bounds checking
- Validate exception safety guarantees
- Check for thread safety issues`,
}

// extensionToLanguage maps file extensions to hint keys.
var extensionToLanguage = map[string]string{
	".go":     "go",
	".py":     "python",
	".pyw":    "python",
	".js":     "javascript",
	".jsx":    "javascript",
	".ts":     "typescript",
	".tsx":    "typescript",
	".mjs":    "javascript",
	".cjs":    "javascript",
	".java":   "java",
	".rs":     "rust",
	".rb":     "ruby",
	".php":    "php",
	".swift":  "swift",
	".kt":     "kotlin",
	".kts":    "kotlin",
	".c":      "c",
	".h":      "c",
	".cpp":    "cpp",
	".hpp":    "cpp",
	".cs":     "java", // C# shares similar patterns with Java
	".dart":   "java",
	".vue":    "javascript",
	".svelte": "javascript",
}

// extensionToDisplay maps extensions to the project language label.
var extensionToDisplay = map[string]string{
	".js": "JavaScript", ".jsx": "JavaScript", ".mjs": "JavaScript", ".cjs": "JavaScript",
	".ts": "TypeScript", ".tsx": "TypeScript",
	".py": "Python", ".pyw": "Python",
	".java": "Java",
	".go":   "Go",
	".rs":   "Rust",
	".rb":   "Ruby",
	".php":  "PHP",
	".cs":   "C#",
	".cpp":  "C++", ".c": "C++",
}

// LanguageForPath returns the hint key for a file path, or "".
func LanguageForPath(path string) string {
	return extensionToLanguage[strings.ToLower(filepath.Ext(path))]
}

// DetectLanguage returns the most common language label among paths, or ""
// when none is recognized. Ties resolve alphabetically.
func DetectLanguage(paths []string) string {
	counts := make(map[string]int)
	for _, p := range paths {
		if lang, ok := extensionToDisplay[strings.ToLower(filepath.Ext(p))]; ok {
			counts[lang]++
		}
	}
	if len(counts) == 0 {
		return ""
	}
	langs := make([]string, 0, len(counts))
	for l := range counts {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool {
		if counts[langs[i]] != counts[langs[j]] {
			return counts[langs[i]] > counts[langs[j]]
		}
		return langs[i] < langs[j]
	})
	return langs[0]
}

// FrameworkInputs are the repository files framework detection reads.
type FrameworkInputs struct {
	PackageJSON  string
	Requirements string
	Paths        []string
}

// DetectFramework inspects package.json dependencies, requirements.txt and
// well-known config files. It returns "" when nothing matches.
func DetectFramework(in FrameworkInputs) string {
	if in.PackageJSON != "" {
		var pkg struct {
			Dependencies    map[string]string `json:"dependencies"`
			DevDependencies map[string]string `json:"devDependencies"`
		}
		if json.Unmarshal([]byte(in.PackageJSON), &pkg) == nil {
			has := func(name string) bool {
				_, a := pkg.Dependencies[name]
				_, b := pkg.DevDependencies[name]
				return a || b
			}
			for _, fw := range []struct{ dep, name string }{
				{"next", "Next.js"},
				{"react", "React"},
				{"vue", "Vue.js"},
				{"@angular/core", "Angular"},
				{"svelte", "Svelte"},
				{"express", "Express.js"},
				{"fastify", "Fastify"},
				{"@nestjs/core", "NestJS"},
			} {
				if has(fw.dep) {
					return fw.name
				}
			}
		}
	}

	if req := strings.ToLower(in.Requirements); req != "" {
		switch {
		case strings.Contains(req, "django"):
			return "Django"
		case strings.Contains(req, "flask"):
			return "Flask"
		case strings.Contains(req, "fastapi"):
			return "FastAPI"
		}
	}

	names := make(map[string]bool, len(in.Paths))
	for _, p := range in.Paths {
		names[strings.ToLower(p)] = true
	}
	switch {
	case names["next.config.js"] || names["next.config.mjs"]:
		return "Next.js"
	case names["nuxt.config.js"]:
		return "Nuxt.js"
	case names["vue.config.js"]:
		return "Vue.js"
	case names["angular.json"]:
		return "Angular"
	case names["svelte.config.js"]:
		return "Svelte"
	}
	return ""
}

// DetectLanguagesFromPaths returns the deduplicated hint keys for paths in order.
func DetectLanguagesFromPaths(paths []string) []string {
	seen := make(map[string]bool)
	var languages []string
	for _, p := range paths {
		lang := LanguageForPath(p)
		if lang != "" && !seen[lang] {
			seen[lang] = true
			languages = append(languages, lang)
		}
	}
	return languages
}

// GenerateLanguageHints creates a prompt section with language-specific
// guidance for the given file paths.
func GenerateLanguageHints(paths ...string) string {
	languages := DetectLanguagesFromPaths(paths)
	if len(languages) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("\n\n--- Language-Specific Guidelines ---\n")

	for _, lang := range languages {
		if hint, ok := languageHints[lang]; ok {
			b.WriteString("\n")
			b.WriteString(hint)
			b.WriteString("\n")
		}
	}

	return b.String()
}
