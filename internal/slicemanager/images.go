package slicemanager

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
	"golang.org/x/crypto/ssh"

	"github.com/joyastack/joyastack/internal/database/queries"
	apierrors "github.com/joyastack/joyastack/internal/shared/errors"
)

// maxImageUploadBytes caps the accepted size of one image upload.
const maxImageUploadBytes = 8 << 30

type imageView struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	Path           string `json:"path"`
	Sha256         string `json:"sha256"`
	Size           int64  `json:"size"`
	ReferenceCount int32  `json:"reference_count"`
}

func newImageView(img queries.Image) imageView {
	return imageView{
		ID:             img.ID,
		Name:           img.Name,
		Path:           img.Path,
		Sha256:         img.Sha256,
		Size:           img.Size,
		ReferenceCount: img.ReferenceCount,
	}
}

func (s *Service) handleListImages(w http.ResponseWriter, r *http.Request) {
	images, err := s.db.ImageFindAll(r.Context())
	if err != nil {
		s.logger.Error("Failed to list images", "error", err)
		apierrors.NewInternalError("").WriteJSON(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"images": lo.Map(images, func(img queries.Image, _ int) imageView {
			return newImageView(img)
		}),
	})
}

func (s *Service) handleListFlavors(w http.ResponseWriter, r *http.Request) {
	flavors, err := s.db.FlavorFindAll(r.Context())
	if err != nil {
		s.logger.Error("Failed to list flavors", "error", err)
		apierrors.NewInternalError("").WriteJSON(w)
		return
	}

	type flavorView struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		CPU  int32  `json:"cpu"`
		RAM  int32  `json:"ram"`
		Disk int32  `json:"disk"`
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"flavors": lo.Map(flavors, func(f queries.Flavor, _ int) flavorView {
			return flavorView{ID: f.ID, Name: f.Name, CPU: f.Cpu, RAM: f.Ram, Disk: f.Disk}
		}),
	})
}

// handleUploadImage stores a VM image on the head node and registers
// it. An existing image with the same name and size is replaced: the
// remote file and the row are removed first.
func (s *Service) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.NewValidationError("multipart field 'file' is required", nil).WriteJSON(w)
		return
	}
	defer file.Close()

	size := header.Size
	if size <= 0 || size > maxImageUploadBytes {
		apierrors.NewValidationError("image size out of range",
			map[string]interface{}{"size": size}).WriteJSON(w)
		return
	}

	filename := path.Base(header.Filename)
	if filename == "" || filename == "." || filename == "/" || strings.ContainsAny(filename, " '\"") {
		apierrors.NewValidationError("invalid image filename", nil).WriteJSON(w)
		return
	}

	remotePath := path.Join(s.config.ImageDir, filename)

	existing, err := s.db.ImageFindByNameAndSize(r.Context(), filename, size)
	replacing := err == nil
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		s.logger.Error("Failed to check existing image", "name", filename, "error", err)
		apierrors.NewInternalError("").WriteJSON(w)
		return
	}

	client, err := s.dialHeadNode()
	if err != nil {
		s.logger.Error("Failed to reach head node", "error", err)
		apierrors.NewUnavailableError("head node unreachable").WriteJSON(w)
		return
	}
	defer client.Close()

	if replacing {
		s.logger.Info("Replacing existing image", "name", filename, "image_id", existing.ID)
		if err := runRemote(client, fmt.Sprintf("rm -f %s", existing.Path), nil); err != nil {
			s.logger.Warn("Failed to remove old image file", "path", existing.Path, "error", err)
		}
		if err := s.db.ImageDelete(r.Context(), existing.ID); err != nil {
			s.logger.Error("Failed to delete old image row", "image_id", existing.ID, "error", err)
			apierrors.NewInternalError("").WriteJSON(w)
			return
		}
	}

	if err := runRemote(client, fmt.Sprintf("mkdir -p %s", s.config.ImageDir), nil); err != nil {
		s.logger.Error("Failed to prepare image directory", "error", err)
		apierrors.NewUnavailableError("head node upload failed").WriteJSON(w)
		return
	}

	// The digest is computed while the bytes stream to the head node;
	// the image is never buffered in memory.
	hash := sha256.New()
	if err := runRemote(client, fmt.Sprintf("cat > %s", remotePath), io.TeeReader(file, hash)); err != nil {
		s.logger.Error("Failed to upload image", "path", remotePath, "error", err)
		apierrors.NewUnavailableError("head node upload failed").WriteJSON(w)
		return
	}
	digest := hex.EncodeToString(hash.Sum(nil))

	img, err := s.db.ImageCreate(r.Context(), queries.ImageCreateParams{
		Name:   filename,
		Path:   remotePath,
		Sha256: digest,
		Size:   size,
	})
	if err != nil {
		s.logger.Error("Failed to register image", "name", filename, "error", err)
		apierrors.NewInternalError("").WriteJSON(w)
		return
	}

	s.logger.Info("Image uploaded", "image_id", img.ID, "name", filename, "size", size)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"image":    newImageView(img),
		"replaced": replacing,
	})
}

// dialHeadNode opens an SSH connection to the image store host.
func (s *Service) dialHeadNode() (*ssh.Client, error) {
	if s.config.HeadNodeIP == "" {
		return nil, fmt.Errorf("head node is not configured")
	}

	sshConfig := &ssh.ClientConfig{
		User: s.config.SSHUser,
		Auth: []ssh.AuthMethod{
			ssh.Password(s.config.SSHPassword),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.config.SSHTimeout,
	}

	addr := fmt.Sprintf("%s:%d", s.config.HeadNodeIP, s.config.HeadNodePort)
	return ssh.Dial("tcp", addr, sshConfig)
}

// runRemote executes one command in a fresh session, optionally feeding
// stdin. The session is always closed.
func runRemote(client *ssh.Client, cmd string, stdin io.Reader) error {
	session, err := client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	if stdin != nil {
		session.Stdin = stdin
	}
	if out, err := session.CombinedOutput(cmd); err != nil {
		return fmt.Errorf("remote command failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
