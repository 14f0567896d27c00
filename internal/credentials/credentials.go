// Package credentials loads the secrets feedsync needs to reach its
// collaborators: the SFTP file store and the catalog service.
// Secrets live in a TOML file separate from the main configuration so the
// latter can be committed and shared.
package credentials

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/ubuntu/decorate"
)

// SFTP holds the SFTP connection credentials.
type SFTP struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	User           string `toml:"user"`
	Password       string `toml:"password"`
	KnownHostsFile string `toml:"known_hosts_file"`
}

// Catalog holds the catalog service credentials.
type Catalog struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

// Credentials is the content of a credentials file.
type Credentials struct {
	SFTP    SFTP    `toml:"sftp"`
	Catalog Catalog `toml:"catalog"`
}

// Load reads and validates the credentials file at path.
func Load(path string) (creds Credentials, err error) {
	defer decorate.OnError(&err, "could not load credentials from %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return Credentials{}, err
	}

	md, err := toml.Decode(string(data), &creds)
	if err != nil {
		return Credentials{}, fmt.Errorf("invalid TOML: %v", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Credentials{}, fmt.Errorf("unknown keys in credentials file: %v", undecoded)
	}

	if creds.SFTP.Host == "" {
		return Credentials{}, errors.New("sftp.host must be set")
	}
	if creds.Catalog.BaseURL == "" {
		return Credentials{}, errors.New("catalog.base_url must be set")
	}

	return creds, nil
}
