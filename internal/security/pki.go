package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CertArgs describes the self-signed application instance certificate of the server.
type CertArgs struct {
	KeySize      int
	PKIPath      string
	Overwrite    bool
	CommonName   string
	Organization string
	Host         string
	AltHostNames []string
	AltIPs       []string
	DurationDays int
}

// CertFile returns the path of the PEM certificate.
func (a CertArgs) CertFile() string { return filepath.Join(a.PKIPath, "server.crt") }

// KeyFile returns the path of the PEM private key.
func (a CertArgs) KeyFile() string { return filepath.Join(a.PKIPath, "server.key") }

// ApplicationURI returns the application uri embedded in the certificate.
func (a CertArgs) ApplicationURI() string {
	return fmt.Sprintf("urn:%s:%s", a.Host, a.CommonName)
}

// EnsureCertificate creates the certificate and key under args.PKIPath
// unless both already exist and args.Overwrite is false.
func EnsureCertificate(args CertArgs, logger logrus.FieldLogger) error {
	if !args.Overwrite && exists(args.CertFile()) && exists(args.KeyFile()) {
		logger.WithField("PKI", args.PKIPath).Debugln("Server certificate found 🔔")
		return nil
	}
	if err := os.MkdirAll(args.PKIPath, os.ModeDir|0755); err != nil {
		return errors.Wrap(err, "create pki directory")
	}
	if err := createCertificate(args, logger); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"PKI":     args.PKIPath,
		"KeySize": args.KeySize,
	}).Infoln("Server certificate created ✅")
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func createCertificate(args CertArgs, logger logrus.FieldLogger) error {
	if args.KeySize < minServerKeyLen {
		args.KeySize = minServerKeyLen
	}
	if args.DurationDays <= 0 {
		args.DurationDays = 365
	}
	key, err := rsa.GenerateKey(rand.Reader, args.KeySize)
	if err != nil {
		return errors.Wrap(err, "generate key")
	}

	applicationURI, err := url.Parse(args.ApplicationURI())
	if err != nil {
		return errors.Wrap(err, "parse application uri")
	}
	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return errors.Wrap(err, "serial number")
	}
	subjectKeyHash := sha1.New()
	subjectKeyHash.Write(key.PublicKey.N.Bytes())
	subjectKeyID := subjectKeyHash.Sum(nil)

	dnsNames := append([]string{args.Host}, args.AltHostNames...)

	ipAddresses := make([]net.IP, 0, len(args.AltIPs)+1)
	if ip := localIP(); ip != nil {
		ipAddresses = append(ipAddresses, ip)
	}
	for _, s := range args.AltIPs {
		ip := net.ParseIP(s)
		if ip == nil {
			logger.WithField("IP", s).Warnln("Invalid IP skipped 🔔")
			continue
		}
		ipAddresses = append(ipAddresses, ip)
	}

	uris := []*url.URL{applicationURI}
	for _, h := range args.AltHostNames {
		if u, err := url.Parse(fmt.Sprintf("urn:%s:%s", h, args.CommonName)); err == nil {
			uris = append(uris, u)
		}
	}

	subject := pkix.Name{CommonName: args.CommonName}
	if args.Organization != "" {
		subject.Organization = []string{args.Organization}
	}
	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               subject,
		SubjectKeyId:          subjectKeyID,
		AuthorityKeyId:        subjectKeyID,
		NotBefore:             now,
		NotAfter:              now.AddDate(0, 0, args.DurationDays),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment | x509.KeyUsageKeyEncipherment | x509.KeyUsageDataEncipherment | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ipAddresses,
		URIs:                  uris,
	}

	rawcrt, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return errors.Wrap(err, "create certificate")
	}
	if err := writePEM(args.CertFile(), &pem.Block{Type: "CERTIFICATE", Bytes: rawcrt}); err != nil {
		return err
	}
	return writePEM(args.KeyFile(), &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

func writePEM(path string, block *pem.Block) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer f.Close()
	if err := pem.Encode(f, block); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

// localIP returns the address of the interface used for outbound traffic, if any.
func localIP() net.IP {
	conn, err := net.Dial("udp", "8.8.8.8:53")
	if err != nil {
		return nil
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP
}
