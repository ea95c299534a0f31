// Package sym defines the glyphs that mark pwcmeta stages in command help
// and log lines. They are stable across CLI output and documentation.
package sym

// Stage glyphs, one per top-level command.
const (
	AM = "≡" // am: configuration
	IX = "⨳" // ix: extraction into the canonical store
	SO = "⟶" // so: table export and enhancement
	RE = "⇣" // retrieve: catalog download and filtering
)

// System markers used in log lines.
const (
	Pulse      = "꩜" // worker pool activity
	PulseOpen  = "✿" // pool startup
	PulseClose = "❀" // pool shutdown or cancellation
	DB         = "⊔" // table store
)

type entry struct {
	glyph       string
	command     string
	description string
}

// registry is the canonical mapping between glyphs and commands, in
// pipeline order.
var registry = []entry{
	{RE, "retrieve", "Retrieve: download and filter the paper catalog"},
	{IX, "ix", "Extract: repository metadata into the canonical store"},
	{SO, "so", "Therefore: tables and popularity from the canonical store"},
	{AM, "am", "Configuration: settings and their sources"},
}

// Lookup tables built from the registry at init time.
var (
	// CommandToSymbol maps command names to glyphs.
	CommandToSymbol map[string]string
	// SymbolToCommand maps glyphs to command names.
	SymbolToCommand map[string]string
	// CommandDescriptions holds one-line help per command.
	CommandDescriptions map[string]string
)

func init() {
	CommandToSymbol = make(map[string]string, len(registry))
	SymbolToCommand = make(map[string]string, len(registry))
	CommandDescriptions = make(map[string]string, len(registry))
	for _, e := range registry {
		CommandToSymbol[e.command] = e.glyph
		SymbolToCommand[e.glyph] = e.command
		CommandDescriptions[e.command] = e.description
	}
}

// PipelineOrder lists the stage glyphs in the order `pwcmeta run` executes
// them.
var PipelineOrder = []string{RE, IX, SO}

// Short prefixes a command's short help with its glyph, if it has one.
func Short(command, text string) string {
	if g, ok := CommandToSymbol[command]; ok {
		return g + " " + text
	}
	return text
}
