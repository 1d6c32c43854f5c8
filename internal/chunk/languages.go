package chunk

import (
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageRegistry manages supported languages and their tree-sitter grammars.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

// NewLanguageRegistry creates a registry with the default language set.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}

	r.registerGo()
	r.registerTypeScript()
	r.registerJavaScript()
	r.registerPython()

	return r
}

// GetByExtension returns the language configuration for a file extension.
func (r *LanguageRegistry) GetByExtension(ext string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	langName, ok := r.extToLang[ext]
	if !ok {
		return nil, false
	}
	config, ok := r.configs[langName]
	return config, ok
}

// GetByName returns the language configuration by name.
func (r *LanguageRegistry) GetByName(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	config, ok := r.configs[name]
	return config, ok
}

// GetTreeSitterLanguage returns the tree-sitter grammar for a language name.
func (r *LanguageRegistry) GetTreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.tsLanguages[name]
	return lang, ok
}

// SupportedExtensions returns every registered file extension.
func (r *LanguageRegistry) SupportedExtensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.extToLang))
	for ext := range r.extToLang {
		exts = append(exts, ext)
	}
	return exts
}

func (r *LanguageRegistry) registerLanguage(config *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[config.Name] = config
	r.tsLanguages[config.Name] = tsLang
	for _, ext := range config.Extensions {
		r.extToLang[ext] = config.Name
	}
}

func (r *LanguageRegistry) registerGo() {
	config := &LanguageConfig{
		Name:       "go",
		Extensions: []string{".go"},
		DeclarationTypes: []string{
			"function_declaration",
			"method_declaration",
			"type_declaration",
			"const_declaration",
			"var_declaration",
		},
		CommentTypes: []string{"comment"},
		NameField:    "name",
	}
	r.registerLanguage(config, golang.GetLanguage())
}

func (r *LanguageRegistry) registerTypeScript() {
	tsConfig := &LanguageConfig{
		Name:       "typescript",
		Extensions: []string{".ts"},
		DeclarationTypes: []string{
			"function_declaration",
			"method_definition",
			"class_declaration",
			"interface_declaration",
			"type_alias_declaration",
			"lexical_declaration", // const/let, including arrow functions
			"variable_declaration",
		},
		CommentTypes: []string{"comment"},
		NameField:    "name",
	}
	r.registerLanguage(tsConfig, typescript.GetLanguage())

	tsxConfig := &LanguageConfig{
		Name:             "tsx",
		Extensions:       []string{".tsx"},
		DeclarationTypes: tsConfig.DeclarationTypes,
		CommentTypes:     tsConfig.CommentTypes,
		NameField:        tsConfig.NameField,
	}
	r.registerLanguage(tsxConfig, tsx.GetLanguage())
}

func (r *LanguageRegistry) registerJavaScript() {
	jsConfig := &LanguageConfig{
		Name:       "javascript",
		Extensions: []string{".js", ".mjs"},
		DeclarationTypes: []string{
			"function_declaration",
			"function",
			"method_definition",
			"class_declaration",
			"lexical_declaration",
			"variable_declaration",
		},
		CommentTypes: []string{"comment"},
		NameField:    "name",
	}
	r.registerLanguage(jsConfig, javascript.GetLanguage())

	jsxConfig := &LanguageConfig{
		Name:             "jsx",
		Extensions:       []string{".jsx"},
		DeclarationTypes: jsConfig.DeclarationTypes,
		CommentTypes:     jsConfig.CommentTypes,
		NameField:        jsConfig.NameField,
	}
	r.registerLanguage(jsxConfig, javascript.GetLanguage())
}

func (r *LanguageRegistry) registerPython() {
	config := &LanguageConfig{
		Name:       "python",
		Extensions: []string{".py"},
		DeclarationTypes: []string{
			"function_definition",
			"class_definition",
			"decorated_definition", // function/class preceded by a decorator
			"assignment",           // module-level assignment
		},
		CommentTypes: []string{"comment"},
		NameField:    "name",
	}
	r.registerLanguage(config, python.GetLanguage())
}

var defaultRegistry = NewLanguageRegistry()

// DefaultRegistry returns the package-wide language registry.
func DefaultRegistry() *LanguageRegistry {
	return defaultRegistry
}
