package device

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
	"pingme-link/internal/model"
)

// idFileName is the fixed storage key for the device identifier. The file is
// written once on first pairing and never rotated.
const idFileName = "device_id"

// Store persists the installation's Device Identity under a state directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// LoadOrCreate returns the persisted device identifier, creating one on
// first use. Absence of the file means this is a first-time pairing.
func (s *Store) LoadOrCreate() (string, error) {
	path := filepath.Join(s.dir, idFileName)
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id, nil
		}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("read device id: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write device id: %w", err)
	}
	return id, nil
}

// Load returns the persisted identifier without creating one. Empty string
// means no identity exists yet.
func (s *Store) Load() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, idFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read device id: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Describe builds the device descriptor sent with a pairing token: the
// identity, a best-effort human label, and the raw environment string.
func (s *Store) Describe() (model.DeviceInfo, error) {
	id, err := s.LoadOrCreate()
	if err != nil {
		return model.DeviceInfo{}, err
	}
	return model.DeviceInfo{
		DeviceID:   id,
		DeviceName: label(),
		UserAgent:  environment(),
	}, nil
}

func label() string {
	switch runtime.GOOS {
	case "windows":
		return "PingMe on Windows"
	case "darwin":
		return "PingMe on Mac"
	case "linux":
		return "PingMe on Linux"
	case "android":
		return "PingMe on Android"
	case "ios":
		return "PingMe on iPhone"
	default:
		return "Unknown Device"
	}
}

func environment() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("pingme-link (%s/%s; %s)", runtime.GOOS, runtime.GOARCH, host)
}
