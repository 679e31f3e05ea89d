// Package config holds the validated runtime configuration for the
// gateway: the Bunny storage zone, region, S3-facing credentials and the
// listen address, exactly as laid out in the CLI surface the gateway
// accepts. There is no on-disk config file; the CLI/env flags parsed by
// cmd/bunny-s3-proxy are the single source of truth.
package config

import (
	"errors"
	"fmt"
	"strings"
)

// Region identifies a Bunny storage region and its API hostname.
type Region string

const (
	RegionFalkenstein  Region = "de"
	RegionLondon       Region = "uk"
	RegionNewYork      Region = "ny"
	RegionLosAngeles   Region = "la"
	RegionSingapore    Region = "sg"
	RegionStockholm    Region = "se"
	RegionSaoPaulo     Region = "br"
	RegionJohannesburg Region = "jh"
	RegionSydney       Region = "syd"
)

var regionHosts = map[Region]string{
	RegionFalkenstein:  "storage.bunnycdn.com",
	RegionLondon:       "uk.storage.bunnycdn.com",
	RegionNewYork:      "ny.storage.bunnycdn.com",
	RegionLosAngeles:   "la.storage.bunnycdn.com",
	RegionSingapore:    "sg.storage.bunnycdn.com",
	RegionStockholm:    "se.storage.bunnycdn.com",
	RegionSaoPaulo:     "br.storage.bunnycdn.com",
	RegionJohannesburg: "jh.storage.bunnycdn.com",
	RegionSydney:       "syd.storage.bunnycdn.com",
}

// ErrInvalidRegion is returned when a region code does not match one of
// the nine Bunny storage regions.
var ErrInvalidRegion = errors.New("invalid bunny storage region")

// ParseRegion validates a region code and returns the corresponding Region.
func ParseRegion(code string) (Region, error) {
	r := Region(strings.ToLower(strings.TrimSpace(code)))
	if _, ok := regionHosts[r]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidRegion, code)
	}
	return r, nil
}

// BaseURL returns the https base URL for this region's Bunny storage API.
func (r Region) BaseURL() string {
	return "https://" + regionHosts[r]
}

const (
	DefaultRegion            = RegionFalkenstein
	DefaultListenAddr        = "127.0.0.1:9000"
	DefaultS3AccessKeyID     = "bunny"
	DefaultS3SecretAccessKey = "bunny"
	BunnyConnectTimeoutSecs  = 10
)

// Config is the fully validated runtime configuration for one gateway
// process, bound to exactly one Bunny storage zone.
type Config struct {
	StorageZone        string
	AccessKey          string
	Region             Region
	ListenAddr         string
	SocketPath         string
	S3AccessKeyID      string
	S3SecretAccessKey  string
	Verbose            bool
}

// Validate enforces the constraints spec.md §4.1/§6 place on the flag
// surface: storage zone and access key are required, exactly one of
// listen address / socket path must be set, and the region must already
// have been parsed into a known value.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.StorageZone) == "" {
		errs = append(errs, errors.New("config validation: storage-zone is required"))
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		errs = append(errs, errors.New("config validation: access-key is required"))
	}
	if _, ok := regionHosts[c.Region]; !ok {
		errs = append(errs, fmt.Errorf("config validation: region %q is invalid", c.Region))
	}
	hasListen := strings.TrimSpace(c.ListenAddr) != ""
	hasSocket := strings.TrimSpace(c.SocketPath) != ""
	if hasListen && hasSocket {
		errs = append(errs, errors.New("config validation: listen-addr and socket-path are mutually exclusive"))
	}
	if !hasListen && !hasSocket {
		errs = append(errs, errors.New("config validation: one of listen-addr or socket-path is required"))
	}
	if strings.TrimSpace(c.S3AccessKeyID) == "" {
		errs = append(errs, errors.New("config validation: s3-access-key-id must not be empty"))
	}
	if strings.TrimSpace(c.S3SecretAccessKey) == "" {
		errs = append(errs, errors.New("config validation: s3-secret-access-key must not be empty"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
