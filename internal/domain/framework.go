package domain

import "strings"

// FrameworkType is the application framework detected for a project.
type FrameworkType string

const (
	FrameworkNextJS  FrameworkType = "nextjs"
	FrameworkReact   FrameworkType = "react"
	FrameworkVue     FrameworkType = "vue"
	FrameworkAngular FrameworkType = "angular"
	FrameworkSvelte  FrameworkType = "svelte"
	FrameworkNodeJS  FrameworkType = "nodejs"
	FrameworkPython  FrameworkType = "python"
	FrameworkDjango  FrameworkType = "django"
	FrameworkFlask   FrameworkType = "flask"
	FrameworkFastAPI FrameworkType = "fastapi"
	FrameworkGo      FrameworkType = "go"
	FrameworkRust    FrameworkType = "rust"
	FrameworkJava    FrameworkType = "java"
	FrameworkOther   FrameworkType = "other"
)

var languageFrameworks = map[string]FrameworkType{
	"javascript": FrameworkNextJS,
	"typescript": FrameworkNextJS,
	"python":     FrameworkFastAPI,
	"go":         FrameworkGo,
	"java":       FrameworkJava,
	"rust":       FrameworkRust,
}

// FrameworkForLanguage guesses a framework from a repository's primary language.
// An empty language yields nil.
func FrameworkForLanguage(language string) *FrameworkType {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return nil
	}
	framework, ok := languageFrameworks[language]
	if !ok {
		framework = FrameworkOther
	}
	return &framework
}

// FrameworkInfo is the display form of a framework.
type FrameworkInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Icon        string `json:"icon"`
}

// Info returns display metadata for f.
func (f FrameworkType) Info() FrameworkInfo {
	name := string(f)
	display := name
	if name != "" {
		display = strings.ToUpper(name[:1]) + name[1:]
	}
	return FrameworkInfo{Name: name, DisplayName: display, Icon: name + ".svg"}
}
