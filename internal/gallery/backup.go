package gallery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// DefaultMaxBackups is how many snapshots of each document are kept.
const DefaultMaxBackups = 100

const (
	backupTimeLayout = "20060102_150405"
	backupExt        = ".json"
	encryptedExt     = ".age"
)

// Backup documents.
const (
	BackupImages  = "images"
	BackupPrompts = "prompts"
)

var backupPrefixes = map[string]string{
	BackupImages:  "image_metadata_",
	BackupPrompts: "prompts_",
}

// ErrLocked is returned when restoring an encrypted backup without a
// DecryptionContext.
var ErrLocked = errors.New("backup is encrypted; unlock the private key first")

var reasonChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// BackupInfo describes one snapshot stored in the vault.
type BackupInfo struct {
	Name      string    `json:"name"`
	Document  string    `json:"document"`
	CreatedAt time.Time `json:"created_at"`
	Reason    string    `json:"reason"`
	Encrypted bool      `json:"encrypted"`
}

// BackupService snapshots the metadata documents into a Vault.
type BackupService struct {
	ws         MetadataWorkspace
	vault      Vault
	encryptor  Encryptor
	clock      Clock
	logger     Logger
	maxBackups int
}

// NewBackupService creates the service. A nil encryptor stores plain JSON.
// maxBackups <= 0 disables pruning.
func NewBackupService(ws MetadataWorkspace, vault Vault, encryptor Encryptor, clock Clock, logger Logger, maxBackups int) *BackupService {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &BackupService{
		ws:         ws,
		vault:      vault,
		encryptor:  encryptor,
		clock:      clock,
		logger:     logger,
		maxBackups: maxBackups,
	}
}

// Create snapshots both documents, named
// <prefix><YYYYMMDD_HHMMSS>_<reason>.json with the time in UTC, then prunes
// old snapshots.
func (s *BackupService) Create(reason string) ([]BackupInfo, error) {
	reason = reasonChars.ReplaceAllString(strings.ToLower(strings.TrimSpace(reason)), "_")
	if reason == "" {
		reason = "manual"
	}
	now := s.clock.Now()

	docs := []struct {
		kind string
		doc  any
	}{
		{BackupImages, s.ws.ReadImages()},
		{BackupPrompts, s.ws.ReadPrompts()},
	}

	var created []BackupInfo
	for _, d := range docs {
		data, err := json.MarshalIndent(d.doc, "", "  ")
		if err != nil {
			return created, fmt.Errorf("encoding %s: %w", d.kind, err)
		}
		info := BackupInfo{
			Name:      backupPrefixes[d.kind] + now.UTC().Format(backupTimeLayout) + "_" + reason + backupExt,
			Document:  d.kind,
			CreatedAt: now.UTC().Truncate(time.Second),
			Reason:    reason,
		}
		if s.encryptor != nil {
			var sealed bytes.Buffer
			if err := s.encryptor.Encrypt(bytes.NewReader(data), &sealed); err != nil {
				return created, fmt.Errorf("encrypting %s backup: %w", d.kind, err)
			}
			data = sealed.Bytes()
			info.Name += encryptedExt
			info.Encrypted = true
		}
		if err := s.vault.Put(info.Name, bytes.NewReader(data), int64(len(data))); err != nil {
			return created, fmt.Errorf("storing %s: %w", info.Name, err)
		}
		s.logger.Info("backup created", "name", info.Name, "reason", reason)
		created = append(created, info)
	}

	if s.maxBackups > 0 {
		if _, err := s.Prune(s.maxBackups); err != nil {
			s.logger.Warn("pruning backups failed", "error", err)
		}
	}
	return created, nil
}

// List returns every snapshot, newest first.
func (s *BackupService) List() ([]BackupInfo, error) {
	var out []BackupInfo
	for kind, prefix := range backupPrefixes {
		names, err := s.vault.List(prefix)
		if err != nil {
			return nil, fmt.Errorf("listing backups: %w", err)
		}
		for _, name := range names {
			if info, ok := ParseBackupName(name); ok && info.Document == kind {
				out = append(out, info)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// Restore writes a snapshot back into the workspace. The current document
// is snapshotted first with reason before_restore. Encrypted snapshots
// need dc.
func (s *BackupService) Restore(name string, dc DecryptionContext) error {
	info, ok := ParseBackupName(name)
	if !ok {
		return fmt.Errorf("not a backup name: %q", name)
	}
	if info.Encrypted && dc == nil {
		return ErrLocked
	}

	var buf bytes.Buffer
	if err := s.vault.Get(name, &buf); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	data := buf.Bytes()
	if info.Encrypted {
		var plain bytes.Buffer
		if err := dc.Decrypt(bytes.NewReader(data), &plain); err != nil {
			return fmt.Errorf("decrypting %s: %w", name, err)
		}
		data = plain.Bytes()
	}

	if _, err := s.Create("before_restore"); err != nil {
		return fmt.Errorf("snapshotting current metadata: %w", err)
	}

	switch info.Document {
	case BackupImages:
		doc := NewImageDocument()
		if err := json.Unmarshal(data, doc); err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}
		if doc.Images == nil {
			doc.Images = []ImageRecord{}
		}
		err := s.ws.WriteImages(doc)
		if err == nil {
			s.logger.Info("backup restored", "name", name, "images", len(doc.Images))
		}
		return err
	default:
		doc := NewPromptDocument()
		if err := json.Unmarshal(data, doc); err != nil {
			return fmt.Errorf("parsing %s: %w", name, err)
		}
		if doc.Prompts == nil {
			doc.Prompts = []PromptRecord{}
		}
		err := s.ws.WritePrompts(doc)
		if err == nil {
			s.logger.Info("backup restored", "name", name, "prompts", len(doc.Prompts))
		}
		return err
	}
}

// Prune keeps the newest max snapshots of each document and returns how
// many were deleted.
func (s *BackupService) Prune(max int) (int, error) {
	all, err := s.List()
	if err != nil {
		return 0, err
	}
	kept := map[string]int{}
	deleted := 0
	for _, info := range all {
		kept[info.Document]++
		if kept[info.Document] <= max {
			continue
		}
		if err := s.vault.Delete(info.Name); err != nil {
			return deleted, fmt.Errorf("deleting %s: %w", info.Name, err)
		}
		deleted++
	}
	if deleted > 0 {
		s.logger.Info("old backups pruned", "deleted", deleted)
	}
	return deleted, nil
}

// ParseBackupName decodes a snapshot name. ok is false for foreign objects.
func ParseBackupName(name string) (BackupInfo, bool) {
	info := BackupInfo{Name: name}
	rest := name
	if strings.HasSuffix(rest, encryptedExt) {
		info.Encrypted = true
		rest = strings.TrimSuffix(rest, encryptedExt)
	}
	if !strings.HasSuffix(rest, backupExt) {
		return BackupInfo{}, false
	}
	rest = strings.TrimSuffix(rest, backupExt)

	for kind, prefix := range backupPrefixes {
		if strings.HasPrefix(rest, prefix) {
			info.Document = kind
			rest = strings.TrimPrefix(rest, prefix)
			break
		}
	}
	if info.Document == "" || len(rest) < len(backupTimeLayout)+2 || rest[len(backupTimeLayout)] != '_' {
		return BackupInfo{}, false
	}

	ts, err := time.ParseInLocation(backupTimeLayout, rest[:len(backupTimeLayout)], time.UTC)
	if err != nil {
		return BackupInfo{}, false
	}
	info.CreatedAt = ts
	info.Reason = rest[len(backupTimeLayout)+1:]
	return info, true
}
