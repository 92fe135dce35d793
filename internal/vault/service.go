package vault

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aarnphm/morph/internal/apperr"
	"github.com/aarnphm/morph/internal/handles"
	"github.com/aarnphm/morph/internal/models"
	"github.com/aarnphm/morph/internal/storage"
	"github.com/aarnphm/morph/internal/store"
)

// SwitchHook is invoked after the active vault changes. oldID is empty on
// the first activation.
type SwitchHook func(oldID, newID string)

// Service coordinates vault lifecycle: creation, activation, rescans, tree
// mutations, and settings.
type Service struct {
	db      *store.DB
	handles *handles.Store
	log     *slog.Logger

	mu       sync.Mutex
	active   *models.Vault
	onSwitch []SwitchHook
}

// NewService creates a vault service.
func NewService(db *store.DB, handleStore *handles.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{db: db, handles: handleStore, log: log}
}

// OnSwitch registers a hook fired after every active-vault change. Hooks
// must be registered before the first activation.
func (s *Service) OnSwitch(fn SwitchHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSwitch = append(s.onSwitch, fn)
}

// Create opens a directory as a vault: derives the id from the root path,
// loads settings, scans the tree, grants handles, and persists everything.
// Creating an already-known vault rescans it and returns the fresh record.
func (s *Service) Create(name, rootPath string) (*models.Vault, error) {
	id := VaultID(rootPath)
	settings, err := LoadSettings(rootPath)
	if err != nil {
		s.log.Warn("vault settings unreadable, using defaults",
			slog.String("vault_id", id),
			slog.String("error", err.Error()))
	}

	tree, files, err := Scan(rootPath, id, storage.NewIgnoreList(settings.IgnorePatterns))
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = tree.Name
	}

	v := models.Vault{
		ID:         id,
		Name:       name,
		RootPath:   rootPath,
		LastOpened: time.Now(),
		Tree:       tree,
		Settings:   settings,
	}
	if err := s.db.UpsertVault(v); err != nil {
		return nil, err
	}
	if err := s.persistFiles(id, files); err != nil {
		return nil, err
	}
	return &v, nil
}

// Open activates a known vault, bumping its last-opened time and firing
// the switch hooks.
func (s *Service) Open(id string) (*models.Vault, error) {
	v, err := s.db.GetVault(id)
	if err != nil {
		return nil, err
	}
	if err := s.db.TouchVault(id, time.Now()); err != nil {
		return nil, err
	}

	s.mu.Lock()
	var oldID string
	if s.active != nil {
		oldID = s.active.ID
	}
	s.active = v
	hooks := append([]SwitchHook(nil), s.onSwitch...)
	s.mu.Unlock()

	if oldID != id {
		for _, fn := range hooks {
			fn(oldID, id)
		}
	}
	return v, nil
}

// Active returns the currently active vault, or an error when none is open.
func (s *Service) Active() (*models.Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, apperr.ErrNoActiveVault
	}
	return s.active, nil
}

// Close deactivates the current vault without deleting anything, firing
// the switch hooks with an empty new id so note state and pollers scoped
// to it are torn down. Closing with no active vault is a no-op.
func (s *Service) Close() {
	s.mu.Lock()
	var oldID string
	if s.active != nil {
		oldID = s.active.ID
		s.active = nil
	}
	hooks := append([]SwitchHook(nil), s.onSwitch...)
	s.mu.Unlock()

	if oldID != "" {
		for _, fn := range hooks {
			fn(oldID, "")
		}
	}
}

// Get returns a vault by id without making it active.
func (s *Service) Get(id string) (*models.Vault, error) {
	return s.db.GetVault(id)
}

// List returns all known vaults, most recently opened first.
func (s *Service) List() ([]models.Vault, error) {
	return s.db.ListVaults()
}

// Delete removes a vault, its entities, and its handles. Deleting the
// active vault deactivates it first, with the same hook firing as Close.
func (s *Service) Delete(id string) error {
	s.mu.Lock()
	wasActive := s.active != nil && s.active.ID == id
	if wasActive {
		s.active = nil
	}
	hooks := append([]SwitchHook(nil), s.onSwitch...)
	s.mu.Unlock()

	if wasActive {
		for _, fn := range hooks {
			fn(id, "")
		}
	}

	if err := s.handles.DeleteAllForVault(id); err != nil {
		return err
	}
	return s.db.DeleteVault(id)
}

// Rescan rebuilds a vault's tree and file records from disk. Handles for
// files that disappeared are dropped; surviving files keep their embedding
// state when their checksum is unchanged.
func (s *Service) Rescan(id string) (*models.Vault, error) {
	v, err := s.db.GetVault(id)
	if err != nil {
		return nil, err
	}
	tree, files, err := Scan(v.RootPath, id, storage.NewIgnoreList(v.Settings.IgnorePatterns))
	if err != nil {
		return nil, err
	}
	if err := s.db.UpdateVaultTree(id, tree); err != nil {
		return nil, err
	}
	if err := s.persistFiles(id, files); err != nil {
		return nil, err
	}
	if err := s.pruneHandles(id, files); err != nil {
		return nil, err
	}

	v.Tree = tree
	s.mu.Lock()
	if s.active != nil && s.active.ID == id {
		s.active = v
	}
	s.mu.Unlock()
	return v, nil
}

// RuntimeTree reconciles a vault's durable tree with its stored handles.
// Missing grants mark nodes instead of failing the tree.
func (s *Service) RuntimeTree(id string) (*RuntimeNode, error) {
	v, err := s.db.GetVault(id)
	if err != nil {
		return nil, err
	}
	if v.Tree == nil {
		return nil, fmt.Errorf("vault: %s has no scanned tree", id)
	}
	return Reconcile(v.Tree, func(fileID string) *handles.Handle {
		h, err := s.handles.Get(id, fileID)
		if err != nil {
			s.log.Warn("handle lookup failed",
				slog.String("file_id", fileID),
				slog.String("error", err.Error()))
			return nil
		}
		return h
	}), nil
}

// ToggleFolder flips a directory node's open state and persists the tree.
func (s *Service) ToggleFolder(vaultID, nodeID string) error {
	v, err := s.db.GetVault(vaultID)
	if err != nil {
		return err
	}
	node := FindByID(v.Tree, nodeID)
	if node == nil || node.Kind != models.KindDirectory {
		return apperr.ErrNotFound
	}
	node.IsOpen = !node.IsOpen
	return s.db.UpdateVaultTree(vaultID, v.Tree)
}

// UpdateSettings writes vault settings to both the config file under the
// vault root and the database record.
func (s *Service) UpdateSettings(id string, settings models.Settings) error {
	v, err := s.db.GetVault(id)
	if err != nil {
		return err
	}
	if err := SaveSettings(v.RootPath, settings); err != nil {
		return err
	}
	if err := s.db.UpdateVaultSettings(id, settings); err != nil {
		return err
	}
	s.mu.Lock()
	if s.active != nil && s.active.ID == id {
		s.active.Settings = settings
	}
	s.mu.Unlock()
	return nil
}

// Handle resolves the live handle for a file in a vault. A missing grant
// returns ErrNotFound.
func (s *Service) Handle(vaultID, fileID string) (*handles.Handle, error) {
	h, err := s.handles.Get(vaultID, fileID)
	if err != nil {
		return nil, err
	}
	if h == nil {
		return nil, fmt.Errorf("vault: no handle for %s: %w", fileID, apperr.ErrNotFound)
	}
	return h, nil
}

// ReadFile reads a vault file through its handle.
func (s *Service) ReadFile(vaultID, fileID string) ([]byte, error) {
	h, err := s.Handle(vaultID, fileID)
	if err != nil {
		return nil, err
	}
	return h.ReadFile()
}

func (s *Service) persistFiles(vaultID string, files []ScannedFile) error {
	for _, f := range files {
		if err := s.db.UpsertFile(f.Record); err != nil {
			return err
		}
		if err := s.handles.Put(vaultID, f.Record.ID, f.AbsPath); err != nil {
			return err
		}
	}
	return nil
}

// pruneHandles drops grants for files no longer present on disk.
func (s *Service) pruneHandles(vaultID string, files []ScannedFile) error {
	keep := make(map[string]struct{}, len(files))
	for _, f := range files {
		keep[f.Record.ID] = struct{}{}
	}
	granted, err := s.handles.ListForVault(vaultID)
	if err != nil {
		return err
	}
	for _, h := range granted {
		if _, ok := keep[h.FileID]; !ok {
			if err := s.handles.Delete(vaultID, h.FileID); err != nil {
				return err
			}
		}
	}
	return nil
}
