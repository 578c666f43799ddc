// Package slotstore persists each slot's message definition (slotN.json) and
// script (slotN.js) on an afero filesystem.
package slotstore

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/skytrace/copilot/pkg/logger"
	"github.com/spf13/afero"
)

// NumSlots is the number of slots the store manages.
const NumSlots = 5

var (
	ErrUnknownSlot = errors.New("unknown slot")
	ErrBadPath     = errors.New("module path escapes the store")
)

// Store reads and writes slot files under a directory.
type Store struct {
	fs  afero.Fs
	dir string
	l   logger.Logger
}

// New returns a store rooted at dir on fs.
func New(fs afero.Fs, dir string, l logger.Logger) (*Store, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{fs: fs, dir: dir, l: l}, nil
}

// SlotNames returns slot1..slot5.
func SlotNames() []string {
	names := make([]string, NumSlots)
	for i := range names {
		names[i] = fmt.Sprintf("slot%d", i+1)
	}
	return names
}

// CheckSlot validates a slot name.
func CheckSlot(slot string) error {
	for _, n := range SlotNames() {
		if n == slot {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownSlot, slot)
}

func (s *Store) msgDefPath(slot string) string { return path.Join(s.dir, slot+".json") }
func (s *Store) scriptPath(slot string) string { return path.Join(s.dir, slot+".js") }

func (s *Store) read(p string) (string, error) {
	b, err := afero.ReadFile(s.fs, p)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// GetMsgDef returns slot's stored message definition, empty if none.
func (s *Store) GetMsgDef(slot string) (string, error) {
	if err := CheckSlot(slot); err != nil {
		return "", err
	}
	return s.read(s.msgDefPath(slot))
}

// SetMsgDef validates and stores slot's message definition.
func (s *Store) SetMsgDef(slot, msgDef string) error {
	if err := CheckSlot(slot); err != nil {
		return err
	}
	if _, err := ParseMsgDef(msgDef); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, s.msgDefPath(slot), []byte(msgDef), 0o644)
}

// GetScript returns slot's script source, empty if none.
func (s *Store) GetScript(slot string) (string, error) {
	if err := CheckSlot(slot); err != nil {
		return "", err
	}
	return s.read(s.scriptPath(slot))
}

// SetScript stores slot's script source.
func (s *Store) SetScript(slot, script string) error {
	if err := CheckSlot(slot); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, s.scriptPath(slot), []byte(script), 0o644)
}

// Definition parses slot's stored message definition.
func (s *Store) Definition(slot string) (MsgDef, error) {
	src, err := s.GetMsgDef(slot)
	if err != nil {
		return MsgDef{}, err
	}
	def, err := ParseMsgDef(src)
	if err != nil {
		return MsgDef{}, fmt.Errorf("%s: %w", slot, err)
	}
	return def, nil
}

// HasDefinition reports whether slot has at least one valid field defined.
// An unreadable or invalid definition counts as none.
func (s *Store) HasDefinition(slot string) bool {
	def, err := s.Definition(slot)
	if err != nil {
		s.l.Warning("%v", err)
		return false
	}
	return len(def.Fields) > 0
}

// ReadModule reads a file relative to the store for script require().
func (s *Store) ReadModule(name string) ([]byte, error) {
	if strings.Contains(name, "..") {
		return nil, fmt.Errorf("%w: %s", ErrBadPath, name)
	}
	return afero.ReadFile(s.fs, path.Join(s.dir, path.Clean("/"+name)))
}

// SeedDefaults writes a placeholder script for every slot without one.
func (s *Store) SeedDefaults() error {
	for _, slot := range SlotNames() {
		exists, err := afero.Exists(s.fs, s.scriptPath(slot))
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if err := s.SetScript(slot, fmt.Sprintf("print(\"I am %s\");\n", slot)); err != nil {
			return fmt.Errorf("seed %s: %w", slot, err)
		}
		s.l.Info("Seeded default script for %s", slot)
	}
	return nil
}

func (s *Store) slotFiles() []string {
	var files []string
	for _, slot := range SlotNames() {
		files = append(files, s.msgDefPath(slot), s.scriptPath(slot))
	}
	return files
}

// Backup moves every slot file aside so a test can stage its own.
func (s *Store) Backup() error {
	for _, p := range s.slotFiles() {
		bak := p + ".bak"
		if err := s.fs.Remove(bak); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		exists, err := afero.Exists(s.fs, p)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := s.fs.Rename(p, bak); err != nil {
			return fmt.Errorf("backup %s: %w", p, err)
		}
	}
	return nil
}

// Restore undoes Backup, discarding anything staged since.
func (s *Store) Restore() error {
	var errs []error
	for _, p := range s.slotFiles() {
		if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		bak := p + ".bak"
		exists, err := afero.Exists(s.fs, bak)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !exists {
			continue
		}
		if err := s.fs.Rename(bak, p); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", p, err))
		}
	}
	return errors.Join(errs...)
}
