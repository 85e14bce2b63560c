// Package security provides device identification for hardware-bound
// licenses. The fingerprint is stable across restarts of the same
// terminal and is what activation keys bind to.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// DeviceFingerprint represents device identification information.
type DeviceFingerprint struct {
	Fingerprint string    `json:"fingerprint"`
	Hostname    string    `json:"hostname"`
	MACAddress  string    `json:"mac_address"`
	OS          string    `json:"os"`
	Platform    string    `json:"platform"`
	GeneratedAt time.Time `json:"generated_at"`
}

// FingerprintManager computes and caches the device fingerprint.
// Interface enumeration is not free, so the result is cached for an hour.
type FingerprintManager struct {
	cache         *DeviceFingerprint
	cacheMutex    sync.RWMutex
	cacheExpiry   time.Time
	cacheDuration time.Duration
}

// NewFingerprintManager creates a new fingerprint manager with caching.
func NewFingerprintManager() *FingerprintManager {
	return &FingerprintManager{
		cacheDuration: 1 * time.Hour,
	}
}

// GetFingerprint returns the device fingerprint, computing it if the
// cached value is missing or stale.
func (fm *FingerprintManager) GetFingerprint() (*DeviceFingerprint, error) {
	fm.cacheMutex.RLock()
	if fm.cache != nil && time.Now().Before(fm.cacheExpiry) {
		cached := *fm.cache
		fm.cacheMutex.RUnlock()
		return &cached, nil
	}
	fm.cacheMutex.RUnlock()

	fp, err := fm.generate()
	if err != nil {
		return nil, err
	}

	fm.cacheMutex.Lock()
	fm.cache = fp
	fm.cacheExpiry = time.Now().Add(fm.cacheDuration)
	fm.cacheMutex.Unlock()

	out := *fp
	return &out, nil
}

// MachineID returns the short stable identifier shown to the operator
// and reported during activation.
func (fm *FingerprintManager) MachineID() (string, error) {
	fp, err := fm.GetFingerprint()
	if err != nil {
		return "", err
	}
	return fp.Fingerprint, nil
}

func (fm *FingerprintManager) generate() (*DeviceFingerprint, error) {
	hostname, err := fm.GetHostname()
	if err != nil {
		return nil, err
	}

	mac, err := fm.GetMACAddress()
	if err != nil {
		// A terminal without a usable NIC still needs an identity;
		// fall back to the hostname-only component.
		slog.Warn("no MAC address available, fingerprint degrades to hostname",
			slog.String("error", err.Error()))
		mac = "no-mac"
	}

	components := []string{hostname, mac, runtime.GOOS, runtime.GOARCH}
	sort.Strings(components)
	sum := sha256.Sum256([]byte(strings.Join(components, "|")))

	return &DeviceFingerprint{
		// 16 hex characters: short enough to read over the phone.
		Fingerprint: strings.ToUpper(hex.EncodeToString(sum[:8])),
		Hostname:    hostname,
		MACAddress:  mac,
		OS:          runtime.GOOS,
		Platform:    runtime.GOARCH,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// GetMACAddress retrieves the primary network interface MAC address.
func (fm *FingerprintManager) GetMACAddress() (string, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("failed to get network interfaces: %w", err)
	}

	// Prefer the first up, non-loopback interface with a MAC address.
	for _, iface := range interfaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			return mac, nil
		}
	}

	// Fallback: any interface with a MAC address.
	for _, iface := range interfaces {
		if mac := iface.HardwareAddr.String(); mac != "" && mac != "00:00:00:00:00:00" {
			slog.Warn("using fallback MAC address", slog.String("interface", iface.Name))
			return mac, nil
		}
	}

	return "", fmt.Errorf("no valid MAC address found")
}

// GetHostname retrieves the normalized machine hostname.
func (fm *FingerprintManager) GetHostname() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get hostname: %w", err)
	}
	hostname = strings.ToLower(strings.TrimSpace(hostname))
	if hostname == "" {
		return "", fmt.Errorf("hostname is empty")
	}
	return hostname, nil
}

// InvalidateCache clears the cached fingerprint.
func (fm *FingerprintManager) InvalidateCache() {
	fm.cacheMutex.Lock()
	defer fm.cacheMutex.Unlock()
	fm.cache = nil
	fm.cacheExpiry = time.Time{}
}
