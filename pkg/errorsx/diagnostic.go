package errorsx

import (
	"go.lsp.dev/protocol"
)

// PermanentDiagnostic builds the single IDE-facing diagnostic for a class
// whose native redefinition failed permanently: one message stating the
// change kind that was rejected, at the class's declaration position, so
// the developer can decide to restart.
func PermanentDiagnostic(class string, snippet *Snippet, rejectedChange string) protocol.Diagnostic {
	line, col := 0, 0
	if snippet != nil {
		if snippet.Line > 0 {
			line = snippet.Line - 1
		}
		if snippet.Column > 0 {
			col = snippet.Column - 1
		}
	}

	message := "redefinition of " + class + " rejected: " + rejectedChange

	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: uint32(line), Character: uint32(col)},
			End:   protocol.Position{Line: uint32(line), Character: uint32(col)},
		},
		Severity: protocol.DiagnosticSeverityError,
		Source:   "hotswap",
		Message:  message,
	}
}
