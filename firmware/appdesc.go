package firmware

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// esp_app_desc_t layout, relative to the start of the image.
const (
	// AppDescMagic identifies an ESP-IDF application descriptor
	AppDescMagic = 0xABCD5432

	appDescOffset        = 32
	appDescSecureVersion = appDescOffset + 4
	appDescVersion       = appDescOffset + 16
	appDescProjectName   = appDescOffset + 48
	appDescTime          = appDescOffset + 80
	appDescDate          = appDescOffset + 96
	appDescIDFVersion    = appDescOffset + 112
	appDescEnd           = appDescOffset + 144
)

// AppDescriptor is the ESP-IDF application description embedded in the first segment.
type AppDescriptor struct {
	// SecureVersion is the anti-rollback counter
	SecureVersion uint32

	// Version is the application version string as built
	Version string

	// SemVer is Version parsed as a semantic version, nil if it is not one
	SemVer *semver.Version

	// ProjectName is the ESP-IDF project name
	ProjectName string

	// BuildTime and BuildDate are the compile timestamp strings
	BuildTime string
	BuildDate string

	// IDFVersion is the ESP-IDF version used to build the image
	IDFVersion string
}

// ParseAppDescriptor extracts the application descriptor from an image.
// Returns nil when the image is too short or the descriptor magic is absent.
func ParseAppDescriptor(buf []byte) *AppDescriptor {
	if len(buf) < appDescEnd {
		return nil
	}
	if binary.LittleEndian.Uint32(buf[appDescOffset:appDescOffset+4]) != AppDescMagic {
		return nil
	}

	desc := &AppDescriptor{
		SecureVersion: binary.LittleEndian.Uint32(buf[appDescSecureVersion : appDescSecureVersion+4]),
		Version:       cString(buf[appDescVersion:appDescProjectName]),
		ProjectName:   cString(buf[appDescProjectName:appDescTime]),
		BuildTime:     cString(buf[appDescTime:appDescDate]),
		BuildDate:     cString(buf[appDescDate:appDescIDFVersion]),
		IDFVersion:    cString(buf[appDescIDFVersion:appDescEnd]),
	}

	// git describe output such as "v1.2.0-3-gabcdef" is valid semver prerelease syntax
	if v, err := semver.NewVersion(strings.TrimSpace(desc.Version)); err == nil {
		desc.SemVer = v
	}

	return desc
}

// cString returns the bytes up to the first NUL as a string.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}
