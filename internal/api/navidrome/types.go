package navidrome

import (
	"net/http"
	"time"

	subsonic "github.com/delucks/go-subsonic"
	"go.uber.org/zap"
)

const clientName = "autotag"

// NavidromeClient mirrors ratings onto a Navidrome (or any Subsonic
// compatible) server.
type NavidromeClient struct {
	URL      string
	Username string
	Password string
	Client   subsonic.Client

	authenticated bool
	log           *zap.Logger
}

// NewNavidromeClient creates a new navidrome client
func NewNavidromeClient(url, username, password string, log *zap.Logger) *NavidromeClient {
	if log == nil {
		log = zap.NewNop()
	}
	return &NavidromeClient{
		URL:      url,
		Username: username,
		Password: password,
		Client: subsonic.Client{
			Client:     &http.Client{Timeout: 20 * time.Second},
			BaseUrl:    url,
			User:       username,
			ClientName: clientName,
		},
		log: log,
	}
}
