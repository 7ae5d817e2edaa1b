package all

import (
	"slices"
	"testing"

	"disneyetl/internal/storage"
)

func TestAllBackendsRegistered(t *testing.T) {
	kinds := storage.ListKinds()
	for _, want := range []string{"mssql", "mysql", "postgres", "sqlite"} {
		if !slices.Contains(kinds, want) {
			t.Fatalf("kind %q not registered; got %v", want, kinds)
		}
	}
}
