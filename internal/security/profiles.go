// Package security describes the security profiles offered by the server,
// bootstraps its application instance certificate and authenticates
// user name identities.
package security

import (
	"strings"

	"github.com/awcullen/opcua/ua"
	"github.com/pkg/errors"
)

const (
	hmacSha1        = "http://www.w3.org/2000/09/xmldsig#hmac-sha1"
	hmacSha256      = "http://www.w3.org/2000/09/xmldsig#hmac-sha256"
	aes128Cbc       = "http://www.w3.org/2001/04/xmlenc#aes128-cbc"
	aes256Cbc       = "http://www.w3.org/2001/04/xmlenc#aes256-cbc"
	rsaOaepMgf1p    = "http://www.w3.org/2001/04/xmlenc#rsa-oaep-mgf1p"
	pSha1           = "http://docs.oasis-open.org/ws-sx/ws-secureconversation/200512/dk/p_sha1"
	pSha256         = "http://docs.oasis-open.org/ws-sx/ws-secureconversation/200512/dk/p_sha256"
	minServerKeyLen = 2048
)

// ErrUnknownProfile is returned for a profile name that is not in Profiles.
var ErrUnknownProfile = errors.New("security: unknown profile")

// Profile is the algorithm suite of a security policy.
type Profile struct {
	Name                      string
	PolicyURI                 string
	SymmetricSignature        string
	SymmetricEncryption       string
	AsymmetricSignature       string
	AsymmetricKeyWrap         string
	AsymmetricEncryption      string
	KeyDerivation             string
	DerivedSignatureKeyLength int
	MinAsymmetricKeyLength    int
	MaxAsymmetricKeyLength    int
	CertificateSignature      string
}

// Profiles lists the supported profiles, weakest first.
var Profiles = []Profile{
	{
		Name:      "None",
		PolicyURI: ua.SecurityPolicyURINone,
	},
	{
		Name:                      "Basic128Rsa15",
		PolicyURI:                 ua.SecurityPolicyURIBasic128Rsa15,
		SymmetricSignature:        hmacSha1,
		SymmetricEncryption:       aes128Cbc,
		AsymmetricSignature:       ua.RsaSha1Signature,
		AsymmetricKeyWrap:         ua.RsaV15KeyWrap,
		AsymmetricEncryption:      ua.RsaV15KeyWrap,
		KeyDerivation:             pSha1,
		DerivedSignatureKeyLength: 128,
		MinAsymmetricKeyLength:    1024,
		MaxAsymmetricKeyLength:    2048,
		CertificateSignature:      "Sha1",
	},
	{
		Name:                      "Basic256",
		PolicyURI:                 ua.SecurityPolicyURIBasic256,
		SymmetricSignature:        hmacSha1,
		SymmetricEncryption:       aes256Cbc,
		AsymmetricSignature:       ua.RsaSha1Signature,
		AsymmetricKeyWrap:         rsaOaepMgf1p,
		AsymmetricEncryption:      ua.RsaOaepKeyWrap,
		KeyDerivation:             pSha1,
		DerivedSignatureKeyLength: 192,
		MinAsymmetricKeyLength:    1024,
		MaxAsymmetricKeyLength:    2048,
		CertificateSignature:      "Sha256",
	},
	{
		Name:                      "Basic256Sha256",
		PolicyURI:                 ua.SecurityPolicyURIBasic256Sha256,
		SymmetricSignature:        hmacSha256,
		SymmetricEncryption:       aes256Cbc,
		AsymmetricSignature:       ua.RsaSha256Signature,
		AsymmetricKeyWrap:         rsaOaepMgf1p,
		AsymmetricEncryption:      ua.RsaOaepKeyWrap,
		KeyDerivation:             pSha256,
		DerivedSignatureKeyLength: 256,
		MinAsymmetricKeyLength:    2048,
		MaxAsymmetricKeyLength:    4096,
		CertificateSignature:      "Sha256",
	},
	{
		Name:                      "Aes128_Sha256_RsaOaep",
		PolicyURI:                 ua.SecurityPolicyURIAes128Sha256RsaOaep,
		SymmetricSignature:        hmacSha256,
		SymmetricEncryption:       aes128Cbc,
		AsymmetricSignature:       ua.RsaSha256Signature,
		AsymmetricKeyWrap:         rsaOaepMgf1p,
		AsymmetricEncryption:      ua.RsaOaepKeyWrap,
		KeyDerivation:             pSha256,
		DerivedSignatureKeyLength: 256,
		MinAsymmetricKeyLength:    2048,
		MaxAsymmetricKeyLength:    4096,
		CertificateSignature:      "Sha256",
	},
	{
		Name:                      "Aes256_Sha256_RsaPss",
		PolicyURI:                 ua.SecurityPolicyURIAes256Sha256RsaPss,
		SymmetricSignature:        hmacSha256,
		SymmetricEncryption:       aes256Cbc,
		AsymmetricSignature:       ua.RsaPssSha256Signature,
		AsymmetricKeyWrap:         ua.RsaOaepSha256KeyWrap,
		AsymmetricEncryption:      ua.RsaOaepSha256KeyWrap,
		KeyDerivation:             pSha256,
		DerivedSignatureKeyLength: 256,
		MinAsymmetricKeyLength:    2048,
		MaxAsymmetricKeyLength:    4096,
		CertificateSignature:      "Sha256",
	},
}

// Lookup finds a profile by name, ignoring case.
func Lookup(name string) (Profile, bool) {
	for _, p := range Profiles {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Profile{}, false
}

// Secure reports whether the profile signs and encrypts messages.
func (p Profile) Secure() bool {
	return p.PolicyURI != ua.SecurityPolicyURINone
}

// ServerKeySize returns the RSA key size for a server certificate usable
// with every named profile.
func ServerKeySize(names []string) (int, error) {
	size := minServerKeyLen
	for _, name := range names {
		p, ok := Lookup(name)
		if !ok {
			return 0, errors.Wrap(ErrUnknownProfile, name)
		}
		if p.MinAsymmetricKeyLength > size {
			size = p.MinAsymmetricKeyLength
		}
	}
	return size, nil
}

// AllowsNone reports whether the None profile is among names.
func AllowsNone(names []string) bool {
	for _, name := range names {
		if p, ok := Lookup(name); ok && !p.Secure() {
			return true
		}
	}
	return false
}
