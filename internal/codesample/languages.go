package codesample

import "github.com/dlclark/regexp2"

// aliases maps every recognized fence label to its canonical language.
var aliases = map[string]string{
	"rust": "rust", "rs": "rust",
	"javascript": "javascript", "js": "javascript", "mjs": "javascript", "jsx": "javascript",
	"typescript": "typescript", "ts": "typescript", "tsx": "typescript",
	"python": "python", "py": "python", "python3": "python",
	"go": "go", "golang": "go",
	"bash": "bash", "sh": "bash", "shell": "bash", "zsh": "bash", "console": "bash", "shell-session": "bash",
	"toml": "toml",
	"sql": "sql",
	"json": "json", "jsonc": "jsonc", "json5": "jsonc",
	"yaml": "yaml", "yml": "yaml",
	"html": "html", "xml": "xml", "svg": "xml",
	"css": "css", "scss": "scss", "sass": "scss",
	"ruby": "ruby", "rb": "ruby", "erb": "ruby", "liquid": "liquid",
	"java": "java", "kotlin": "kotlin", "swift": "swift", "c": "c", "cpp": "cpp", "c++": "cpp",
	"csharp": "csharp", "cs": "csharp", "php": "php",
	"powershell": "powershell", "ps1": "powershell",
	"dockerfile": "dockerfile", "docker": "dockerfile",
	"makefile": "makefile", "make": "makefile",
	"ini": "ini", "env": "ini", "nginx": "nginx", "http": "http",
	"graphql": "graphql", "proto": "protobuf", "protobuf": "protobuf",
	"wat": "wasm", "wasm": "wasm",
	"diff": "diff", "patch": "diff",
	"markdown": "markdown", "md": "markdown",
	"mermaid": "mermaid",
	"text": "text", "txt": "text", "plaintext": "text", "plain": "text", "output": "text",
}

// hallmarks are the syntax features that identify a language. A labeled block
// that matches none of its language's hallmarks is reported as a mismatch.
var hallmarks = map[string]*regexp2.Regexp{
	"rust": mustHallmark(`\b(?:fn|let|use|struct|impl|enum|mod|pub|trait|match|crate)\b|\w+!\s*[(\[{]|#\[`),
	"javascript": mustHallmark(`\b(?:function|const|let|var|import|export|class|require|async|await|return|new)\b|=>|\bconsole\.|\bdocument\.`),
	"python": mustHallmark(`\b(?:def|import|from|class|print|lambda|elif|self|return|async)\b`),
	"go": mustHallmark(`\b(?:package|func|import|type|var|const|defer|chan|go)\b|:=`),
	"bash": mustHallmark(`^\s*(?:\$\s|#!|#\s|sudo\b|cd\b|ls\b|echo\b|export\b|cargo\b|npm\b|npx\b|yarn\b|git\b|curl\b|wget\b|mkdir\b|rm\b|cp\b|mv\b|apt(?:-get)?\b|brew\b|docker\b|make\b|go\b|pip3?\b|python3?\b|bundle\b|gem\b|rustup\b|chmod\b|source\b|\.\/)|\|\s*\w|&&`),
	"toml": mustHallmark(`^\s*\[\[?[\w.\-"]+\]\]?\s*$|^\s*[\w.\-"]+\s*=`),
	"sql": mustHallmark(`(?i)\b(?:select|insert|update|delete|create|alter|drop|from|where|join)\b`),
}

func mustHallmark(pattern string) *regexp2.Regexp {
	re := regexp2.MustCompile(pattern, regexp2.Multiline)
	re.MatchTimeout = matchTimeout
	return re
}

// HallmarkLanguages returns the languages that get the mismatch check.
func HallmarkLanguages() []string {
	return []string{"rust", "javascript", "python", "go", "bash", "toml", "sql"}
}
