package models

// EditorSettings holds editor behaviour flags.
type EditorSettings struct {
	Vim     bool `json:"vim"`
	TabSize int  `json:"tabSize"`
}

// ShortcutSettings holds keybindings for the writing surface.
type ShortcutSettings struct {
	EditMode    string `json:"editMode"`
	ToggleNotes string `json:"toggleNotes"`
}

// CitationSettings configures the citation database for a vault.
type CitationSettings struct {
	Enabled      bool           `json:"enabled"`
	Format       CitationFormat `json:"format"`
	DatabasePath string         `json:"databasePath,omitempty"`
}

// Settings is the per-vault configuration, persisted as JSON under the
// vault's hidden config directory. Unknown keys are ignored on read and
// missing ones are filled from defaults, so older config files keep working.
type Settings struct {
	Editor         EditorSettings   `json:"editor"`
	Shortcuts      ShortcutSettings `json:"shortcuts"`
	IgnorePatterns []string         `json:"ignorePatterns"`
	Citation       CitationSettings `json:"citation"`
}

// DefaultSettings returns the settings applied to a vault before any
// explicit configuration is written.
func DefaultSettings() Settings {
	return Settings{
		Editor: EditorSettings{
			Vim:     false,
			TabSize: 2,
		},
		Shortcuts: ShortcutSettings{
			EditMode:    "e",
			ToggleNotes: "i",
		},
		IgnorePatterns: []string{
			"**/.*",
			"**/node_modules/**",
			".vercel/**",
			".venv/**",
			"venv/**",
			"**/dist/**",
			"__pycache__/**",
			"*.log",
			".DS_Store",
			".obsidian",
		},
		Citation: CitationSettings{
			Enabled: false,
			Format:  FormatBibLaTeX,
		},
	}
}
