// Package config defines the bridge configuration snapshot and the
// viper-backed provider it is read from.
package config

import (
	"strings"
	"time"
)

// CharacterSet identifies the code page text is transcoded into before it
// is sent to a thermal printer.
type CharacterSet string

const (
	PC437USA            CharacterSet = "PC437_USA"
	PC850Multilingual   CharacterSet = "PC850_MULTILINGUAL"
	PC852Latin2         CharacterSet = "PC852_LATIN2"
	PC858Euro           CharacterSet = "PC858_EURO"
	PC860Portuguese     CharacterSet = "PC860_PORTUGUESE"
	PC863CanadianFrench CharacterSet = "PC863_CANADIAN_FRENCH"
	PC865Nordic         CharacterSet = "PC865_NORDIC"
	PC866Cyrillic2      CharacterSet = "PC866_CYRILLIC2"
	WPC1252             CharacterSet = "WPC1252"
)

// CharacterSets lists every supported character set.
var CharacterSets = []CharacterSet{
	PC437USA, PC850Multilingual, PC852Latin2, PC858Euro, PC860Portuguese,
	PC863CanadianFrench, PC865Nordic, PC866Cyrillic2, WPC1252,
}

// Valid reports whether c is a supported character set.
func (c CharacterSet) Valid() bool {
	for _, known := range CharacterSets {
		if c == known {
			return true
		}
	}
	return false
}

// Defaults applied when a key is unset or out of range.
const (
	DefaultDeviceName       = "POS58"
	DefaultCharacterSet     = PC852Latin2
	DefaultColumns          = 32
	DefaultConnectTimeoutMs = 5000
	DefaultSpoolTimeoutMs   = 30000
	DefaultLineCharacter    = "="
	DefaultSubstitute       = "?"
	DefaultHeader           = "PHOTOBOOTH APP"
	DefaultSubtitle         = "POS58B Test Print"
	DefaultFooter           = "Thank you!"
	DefaultAppURL           = "https://google.com"
	DefaultListenAddress    = "localhost:8765"
	DefaultRequestsPerSec   = 5.0
)

// PrinterConfig is the part of the snapshot consumed by the print backends.
type PrinterConfig struct {
	DeviceName          string       `json:"deviceName"`
	CharacterSet        CharacterSet `json:"characterSet"`
	PaperColumns        int          `json:"paperColumns"`
	ConnectTimeoutMs    int          `json:"connectTimeoutMs"`
	SpoolTimeoutMs      int          `json:"spoolTimeoutMs"`
	LineCharacter       string       `json:"lineCharacter"`
	SubstituteCharacter string       `json:"substituteCharacter"`
	DefaultHeader       string       `json:"defaultHeader"`
	DefaultSubtitle     string       `json:"defaultSubtitle"`
	DefaultFooter       string       `json:"defaultFooter"`
}

// ConnectTimeout bounds connect, status checks and each send.
func (p PrinterConfig) ConnectTimeout() time.Duration {
	return time.Duration(p.ConnectTimeoutMs) * time.Millisecond
}

// SpoolTimeout bounds a page render plus its spooler submission.
func (p PrinterConfig) SpoolTimeout() time.Duration {
	return time.Duration(p.SpoolTimeoutMs) * time.Millisecond
}

// Snapshot is a read-only view of the configuration taken once per request.
type Snapshot struct {
	PrinterConfig

	KioskMode         bool    `json:"kioskMode"`
	DebugMode         bool    `json:"debugMode"`
	AppURL            string  `json:"appUrl"`
	ChromePath        string  `json:"chromePath,omitempty"`
	ListenAddress     string  `json:"listenAddress"`
	RawAddress        string  `json:"rawAddress,omitempty"`
	HistoryPath       string  `json:"historyPath,omitempty"`
	RequestsPerSecond float64 `json:"requestsPerSecond"`
}

// Normalize replaces out-of-range values with their defaults. The device
// name is left untouched: an empty name is a meaningful state.
func (s Snapshot) Normalize() Snapshot {
	s.DeviceName = strings.TrimSpace(s.DeviceName)
	s.CharacterSet = CharacterSet(strings.ToUpper(strings.TrimSpace(string(s.CharacterSet))))
	if !s.CharacterSet.Valid() {
		s.CharacterSet = PC437USA
	}
	if s.PaperColumns <= 0 {
		s.PaperColumns = DefaultColumns
	}
	if s.ConnectTimeoutMs <= 0 {
		s.ConnectTimeoutMs = DefaultConnectTimeoutMs
	}
	if s.SpoolTimeoutMs <= 0 {
		s.SpoolTimeoutMs = DefaultSpoolTimeoutMs
	}
	if s.LineCharacter == "" {
		s.LineCharacter = DefaultLineCharacter
	}
	if s.SubstituteCharacter == "" {
		s.SubstituteCharacter = DefaultSubstitute
	}
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.RequestsPerSecond <= 0 {
		s.RequestsPerSecond = DefaultRequestsPerSec
	}
	return s
}

// Provider hands out configuration snapshots. Implementations must be safe
// for concurrent use.
type Provider interface {
	Snapshot() Snapshot
}

// Static is a Provider that always returns the same snapshot.
type Static Snapshot

// Snapshot implements Provider.
func (s Static) Snapshot() Snapshot {
	return Snapshot(s).Normalize()
}
