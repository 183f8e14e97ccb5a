package services

import (
	"fmt"

	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/component"
	"github.com/amine-amaach/simulators/ioTSensorsOPCUA/internal/security"
	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
	"github.com/matishsiao/goInfo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	applicationName = "IoTSensorsUaServer"
	rootObjectName  = "IoTSensors"
)

type UaSrvService struct {
	server         *server.Server
	namespaceIndex uint16
	log            *logrus.Logger
}

func (uaServer *UaSrvService) GetServer() *server.Server {
	return uaServer.server
}

// NamespaceIndex is the index of the sensors namespace.
func (uaServer *UaSrvService) NamespaceIndex() uint16 {
	return uaServer.namespaceIndex
}

// RootNodeID is the 'IoTSensors' object the sensor variables hang off.
func (uaServer *UaSrvService) RootNodeID() ua.NodeID {
	return ua.NodeIDString{NamespaceIndex: uaServer.namespaceIndex, ID: rootObjectName}
}

// NewUaSrvService creates the OPC UA server, bootstrapping its certificate,
// and adds the 'IoTSensors' object under the Objects folder.
func NewUaSrvService(cfg component.Server, log *logrus.Logger) (*UaSrvService, error) {
	srv, err := createUaServer(cfg, log)
	if err != nil {
		log.WithField("Host", cfg.Host).Errorln("Unable to create the OPC UA server ⛔")
		return nil, err
	}
	nsi := srv.NamespaceManager().Add(cfg.NamespaceURI)
	ioTSensors := server.NewObjectNode(
		srv,
		ua.NodeIDString{NamespaceIndex: nsi, ID: rootObjectName},
		ua.QualifiedName{NamespaceIndex: nsi, Name: rootObjectName},
		ua.LocalizedText{Text: "IoT Sensors"},
		ua.LocalizedText{Text: "A parent object for the IoT sensors."},
		nil,
		[]ua.Reference{
			{
				ReferenceTypeID: ua.ReferenceTypeIDOrganizes,
				IsInverse:       true,
				TargetID:        ua.ExpandedNodeID{NodeID: ua.ObjectIDObjectsFolder},
			},
		},
		0,
	)
	if err := srv.NamespaceManager().AddNode(ioTSensors); err != nil {
		return nil, errors.Wrap(err, "add IoTSensors object")
	}
	return &UaSrvService{server: srv, namespaceIndex: nsi, log: log}, nil
}

func createUaServer(cfg component.Server, log *logrus.Logger) (*server.Server, error) {
	keySize, err := security.ServerKeySize(cfg.SecurityProfiles)
	if err != nil {
		return nil, err
	}
	certArgs := security.CertArgs{
		KeySize:      keySize,
		PKIPath:      cfg.Certificate.PKIPath,
		CommonName:   applicationName,
		Organization: "amine-amaach/simulators",
		Host:         cfg.Host,
		AltHostNames: cfg.Certificate.AdditionalHosts,
		AltIPs:       cfg.Certificate.AdditionalIPs,
		DurationDays: 365,
	}
	if err := security.EnsureCertificate(certArgs, log); err != nil {
		return nil, err
	}

	identities := make([]ua.UserNameIdentity, 0, len(cfg.Users))
	for _, u := range cfg.Users {
		identities = append(identities, ua.UserNameIdentity{UserName: u.Username, Password: u.Password})
	}
	users, err := security.HashPasswords(identities)
	if err != nil {
		return nil, err
	}

	endpointURL := fmt.Sprintf("opc.tcp://%s:%d", cfg.Host, cfg.Port)
	return server.New(
		ua.ApplicationDescription{
			ApplicationURI: certArgs.ApplicationURI(),
			ProductURI:     "http://github.com/awcullen/opcua",
			ApplicationName: ua.LocalizedText{
				Text:   fmt.Sprintf("%s@%s", applicationName, cfg.Host),
				Locale: "en",
			},
			ApplicationType: ua.ApplicationTypeServer,
			DiscoveryURLs:   []string{endpointURL},
		},
		certArgs.CertFile(),
		certArgs.KeyFile(),
		endpointURL,
		server.WithBuildInfo(hostBuildInfo(log)),
		server.WithAnonymousIdentity(cfg.AllowAnonymous),
		server.WithAuthenticateUserNameIdentityFunc(func(userIdentity ua.UserNameIdentity, applicationURI string, endpointURL string) error {
			if err := security.Authenticate(users, userIdentity); err != nil {
				log.WithFields(logrus.Fields{
					"User":        userIdentity.UserName,
					"Application": applicationURI,
				}).Warnln("User access denied 🔔")
				return err
			}
			return nil
		}),
		server.WithSecurityPolicyNone(security.AllowsNone(cfg.SecurityProfiles)),
		server.WithInsecureSkipVerify(),
		server.WithServerDiagnostics(true),
	)
}

// hostBuildInfo stamps the server build info with the host OS, as read by goInfo.
func hostBuildInfo(log *logrus.Logger) ua.BuildInfo {
	info := ua.BuildInfo{
		ProductURI:       "http://github.com/awcullen/opcua",
		ManufacturerName: "awcullen",
		ProductName:      applicationName,
		SoftwareVersion:  "latest",
	}
	gi, err := goInfo.GetInfo()
	if err != nil {
		log.WithField("Err", err).Warnln("Unable to read host info 🔔")
		return info
	}
	info.BuildNumber = fmt.Sprintf("%s/%s %s", gi.GoOS, gi.Platform, gi.Core)
	log.WithFields(logrus.Fields{
		"OS":       gi.OS,
		"Kernel":   gi.Kernel,
		"Hostname": gi.Hostname,
		"CPUs":     gi.CPUs,
	}).Debugln("Host info 🔔")
	return info
}

// Start serves the endpoint in the background until Close is called.
func (uaServer *UaSrvService) Start() {
	go func() {
		uaServer.log.WithFields(logrus.Fields{
			"Application": uaServer.server.LocalDescription().ApplicationName.Text,
			"Endpoint":    uaServer.server.EndpointURL(),
		}).Infoln("Starting OPC UA server ✅")
		err := uaServer.server.ListenAndServe()
		if err != ua.BadServerHalted {
			uaServer.log.Errorln(errors.Wrap(err, "Error starting server"), "⛔")
		}
	}()
}

func (uaServer *UaSrvService) Close() error {
	uaServer.log.Infoln("Stopping OPC UA server 🔔")
	return uaServer.server.Close()
}
