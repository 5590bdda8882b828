package pyrstore

import(
	"database/sql"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	_ "modernc.org/sqlite"

	"github.com/abworrall/focus-stack/pkg/emath"
	"github.com/abworrall/focus-stack/pkg/pyramid"
)

// schema.sql has one row per pyramid in pyramids, and one row per level
// in pyramid_levels, with the samples as a little endian float32 blob.
//
//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps pyramids in a SQLite database file
type SQLiteStore struct {
	*sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("pyramid store schema: %w", err)
	}
	return &SQLiteStore{db}, nil
}

// Store replaces any pyramid already stored under id
func (ss *SQLiteStore)Store(id string, p *pyramid.Pyramid) error {
	if err := checkID(id); err != nil {
		return err
	}

	tx, err := ss.Begin()
	if err != nil {
		return fmt.Errorf("store '%s': %w", id, err)
	}
	defer tx.Rollback()

	if err := deleteRows(tx, id); err != nil {
		return fmt.Errorf("store '%s': %w", id, err)
	}
	if _, err := tx.Exec(`INSERT INTO pyramids (id, levels) VALUES (?, ?)`, id, len(p.Levels)); err != nil {
		return fmt.Errorf("store '%s': %w", id, err)
	}

	query := `
		INSERT INTO pyramid_levels (id, level, w, h, c, dtype, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for i, l := range p.Levels {
		if _, err := tx.Exec(query, id, i, l.W, l.H, l.C, dtypeFloat32, floatsToBytes(l.Pix)); err != nil {
			return fmt.Errorf("store '%s' level %d: %w", id, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store '%s': %w", id, err)
	}
	return nil
}

func (ss *SQLiteStore)Load(id string) (*pyramid.Pyramid, error) {
	var nLevels int
	err := ss.QueryRow(`SELECT levels FROM pyramids WHERE id = ?`, id).Scan(&nLevels)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load '%s': %w", id, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("load '%s': %w", id, err)
	}

	rows, err := ss.Query(`SELECT level, w, h, c, dtype, data FROM pyramid_levels WHERE id = ? ORDER BY level`, id)
	if err != nil {
		return nil, fmt.Errorf("load '%s': %w", id, err)
	}
	defer rows.Close()

	p := &pyramid.Pyramid{}
	for rows.Next() {
		var level int
		var lh levelHeader
		var data []byte
		if err := rows.Scan(&level, &lh.W, &lh.H, &lh.C, &lh.DType, &data); err != nil {
			return nil, fmt.Errorf("load '%s': %w", id, err)
		}
		if level != len(p.Levels) {
			return nil, fmt.Errorf("load '%s': level %d missing: %w", id, len(p.Levels), ErrCorrupt)
		}
		n, err := lh.samples()
		if err != nil {
			return nil, fmt.Errorf("load '%s' level %d: %w", id, level, err)
		}
		if len(data) != 4*n {
			return nil, fmt.Errorf("load '%s' level %d: %d bytes for %d samples: %w", id, level, len(data), n, ErrCorrupt)
		}

		fi := emath.NewFloatImage(int(lh.W), int(lh.H), int(lh.C))
		bytesToFloats(data, fi.Pix)
		p.Levels = append(p.Levels, fi)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load '%s': %w", id, err)
	}

	if len(p.Levels) != nLevels {
		return nil, fmt.Errorf("load '%s': %d of %d levels: %w", id, len(p.Levels), nLevels, ErrCorrupt)
	}
	return p, nil
}

func (ss *SQLiteStore)Delete(id string) error {
	tx, err := ss.Begin()
	if err != nil {
		return fmt.Errorf("delete '%s': %w", id, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM pyramid_levels WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete '%s': %w", id, err)
	}
	res, err := tx.Exec(`DELETE FROM pyramids WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete '%s': %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete '%s': %w", id, ErrNotFound)
	}
	return tx.Commit()
}

func deleteRows(tx *sql.Tx, id string) error {
	if _, err := tx.Exec(`DELETE FROM pyramid_levels WHERE id = ?`, id); err != nil {
		return err
	}
	_, err := tx.Exec(`DELETE FROM pyramids WHERE id = ?`, id)
	return err
}

func floatsToBytes(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func bytesToFloats(b []byte, v []float32) {
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
}
