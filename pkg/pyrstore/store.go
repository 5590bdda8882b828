package pyrstore

import(
	"fmt"
	"strings"

	"github.com/abworrall/focus-stack/pkg/pyramid"
)

// A Store keeps pyramids out of memory between the pass that builds them
// and the pass that fuses them. Load hands back the same number of
// levels, with the same shapes and sample type, as were stored.
type Store interface {
	Store(id string, p *pyramid.Pyramid) error
	Load(id string) (*pyramid.Pyramid, error)
	Delete(id string) error
	Close() error
}

const(
	KindDir    = "dir"
	KindSQLite = "sqlite"
)

// Open returns a store of the given kind, rooted at path: a directory
// for "dir", a database file for "sqlite".
func Open(kind, path string) (Store, error) {
	switch kind {
	case KindDir:
		return NewDirStore(path)
	case KindSQLite:
		return NewSQLiteStore(path)
	}
	return nil, fmt.Errorf("pyramid store '%s': unknown kind", kind)
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("pyramid archive id '%s': not a plain name", id)
	}
	return nil
}
