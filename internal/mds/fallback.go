package mds

import "strings"

// fallbackTable is the Phase-1 static AAGUID table used when the live
// MDS cache has no entry (or none has ever loaded). Entries are assumed
// hardware-backed.
var fallbackTable = map[string]string{
	"fbfc3007-154e-4ecc-8c0b-6e020557d7bd": "iCloud Keychain (Secure Enclave)",
	"adce0002-35bc-c60a-648b-0b25f1f05503": "Chrome on Mac (Touch ID)",
	"08987058-cadc-4b81-b6e1-30de50dcbe96": "Windows Hello (Software)",
	"9ddd1817-af5a-4672-a2b9-3e3dd95000a9": "Windows Hello (Hardware)",
	"6028b017-b1d4-4c02-b4b3-afcdafc96bb2": "Windows Hello (VBS)",
	"ea9b8d66-4d01-1d21-3ce4-b6b48cb575d4": "Google Password Manager",
	"cb69481e-8ff7-4039-93ec-0a2729a154a8": "YubiKey 5 Series (USB-A/NFC)",
	"149a2021-8ef6-4133-96b8-81f8d5b7f1f5": "YubiKey 5 Series (USB-C)",
}

func lookupFallback(aaguid string) Metadata {
	name, ok := fallbackTable[strings.ToLower(aaguid)]
	if !ok {
		return unknownAuthenticator
	}
	return Metadata{
		Resolved:         true,
		Name:             name,
		Description:      name,
		IsHardwareBacked: true,
	}
}
