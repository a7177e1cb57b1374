// Package diff prints readable differences between expected and actual
// values for tests comparing long lists of bindings or diagnostics.
package diff

import (
	"strings"
	"testing"

	"github.com/k0kubun/pp/v3"
	"github.com/kylelemons/godebug/diff"
)

// Values returns the line diff that turns got into want, or "" when both
// print the same. Unexported fields are ignored.
func Values[T any](want, got T) string {
	printer := pp.New()
	printer.SetExportedOnly(true)
	printer.SetColoringEnabled(false)

	d := diff.Diff(printer.Sprint(got), printer.Sprint(want))
	if d == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("\n\nto turn ACTUAL into EXPECTED:\n\n")
	sb.WriteString("add:    ➕\n")
	sb.WriteString("remove: ➖\n\n")
	sb.WriteString(strings.NewReplacer("\n-", "\n➖", "\n+", "\n➕").Replace("\n" + d))
	return sb.String()
}

// Equal fails t with the diff when want and got differ.
func Equal[T any](t testing.TB, want, got T) bool {
	t.Helper()
	if d := Values(want, got); d != "" {
		t.Errorf("unexpected value:%s", d)
		return false
	}
	return true
}
