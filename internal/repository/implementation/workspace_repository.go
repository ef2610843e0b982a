package implementation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"ai-workspace-editor/internal/entity"
	"ai-workspace-editor/internal/repository/contract"
)

const versionsDir = "versions"

var (
	ErrPathEscapesWorkspace = errors.New("path escapes the workspace")
	ErrDocumentNotFound     = errors.New("document not found")
)

// Workspace resolves workspace-relative ids to files under a root directory.
type Workspace struct {
	root string
}

func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace %s is not a directory", abs)
	}
	return &Workspace{root: abs}, nil
}

func (w *Workspace) Root() string {
	return w.root
}

func (w *Workspace) resolve(id string) (string, error) {
	rel := filepath.FromSlash(id)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesWorkspace, id)
	}
	return filepath.Join(w.root, rel), nil
}

// writeFile replaces path atomically through a temp file in the same directory.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

type WorkspaceDocumentRepository struct {
	ws *Workspace
}

func NewWorkspaceDocumentRepository(ws *Workspace) contract.DocumentRepository {
	return &WorkspaceDocumentRepository{ws: ws}
}

func (r *WorkspaceDocumentRepository) Read(ctx context.Context, id string) (*entity.Document, error) {
	path, err := r.ws.resolve(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", id, err)
	}
	return &entity.Document{
		DocumentRef: entity.DocumentRef{
			Id:           filepath.ToSlash(filepath.Clean(filepath.FromSlash(id))),
			FileName:     filepath.Base(path),
			FileCategory: entity.FileCategoryEditable,
		},
		Content: string(data),
	}, nil
}

func (r *WorkspaceDocumentRepository) Write(ctx context.Context, id string, content string) error {
	path, err := r.ws.resolve(id)
	if err != nil {
		return err
	}
	if err := writeFile(path, []byte(content)); err != nil {
		return fmt.Errorf("write %s: %w", id, err)
	}
	return nil
}

// WorkspaceVersionRepository writes snapshots as versions/<base>-<name>-<unixmillis>.md.
type WorkspaceVersionRepository struct {
	ws  *Workspace
	now func() time.Time
}

func NewWorkspaceVersionRepository(ws *Workspace) contract.VersionRepository {
	return &WorkspaceVersionRepository{ws: ws, now: time.Now}
}

func versionBase(documentId string) string {
	return strings.TrimSuffix(filepath.Base(filepath.FromSlash(documentId)), ".md")
}

func (r *WorkspaceVersionRepository) Save(ctx context.Context, documentId, name, content string) (*entity.DocumentVersion, error) {
	ts := r.now()
	fileName := fmt.Sprintf("%s-%s-%d.md", versionBase(documentId), name, ts.UnixMilli())
	path, err := r.ws.resolve(versionsDir + "/" + fileName)
	if err != nil {
		return nil, err
	}
	if err := writeFile(path, []byte(content)); err != nil {
		return nil, fmt.Errorf("write version: %w", err)
	}
	return &entity.DocumentVersion{
		Name:      name,
		Timestamp: time.UnixMilli(ts.UnixMilli()),
		FilePath:  fileName,
	}, nil
}

func (r *WorkspaceVersionRepository) List(ctx context.Context, documentId string) ([]*entity.DocumentVersion, error) {
	entries, err := os.ReadDir(filepath.Join(r.ws.root, versionsDir))
	if errors.Is(err, os.ErrNotExist) {
		return []*entity.DocumentVersion{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}

	prefix := versionBase(documentId) + "-"
	versions := make([]*entity.DocumentVersion, 0)
	for _, entry := range entries {
		fileName := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(fileName, prefix) || !strings.HasSuffix(fileName, ".md") {
			continue
		}
		rest := strings.TrimSuffix(strings.TrimPrefix(fileName, prefix), ".md")
		cut := strings.LastIndex(rest, "-")
		if cut < 0 {
			continue
		}
		millis, err := strconv.ParseInt(rest[cut+1:], 10, 64)
		if err != nil {
			continue
		}
		versions = append(versions, &entity.DocumentVersion{
			Name:      rest[:cut],
			Timestamp: time.UnixMilli(millis),
			FilePath:  fileName,
		})
	}

	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].Timestamp.After(versions[j].Timestamp)
	})
	return versions, nil
}

func (r *WorkspaceVersionRepository) path(version *entity.DocumentVersion) (string, error) {
	if strings.ContainsAny(version.FilePath, `/\`) {
		return "", fmt.Errorf("%w: %s", ErrPathEscapesWorkspace, version.FilePath)
	}
	return r.ws.resolve(versionsDir + "/" + version.FilePath)
}

func (r *WorkspaceVersionRepository) Load(ctx context.Context, version *entity.DocumentVersion) (string, error) {
	path, err := r.path(version)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read version: %w", err)
	}
	return string(data), nil
}

func (r *WorkspaceVersionRepository) Delete(ctx context.Context, version *entity.DocumentVersion) error {
	path, err := r.path(version)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete version: %w", err)
	}
	return nil
}
