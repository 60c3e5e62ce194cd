package invoke

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/joegilkes/speechcli/internal/clierr"
)

// EnvAPIKey is the environment variable consulted for the API key.
const EnvAPIKey = "SPEECHCLI_API_KEY"

const credentialFileName = ".env"

// ResolveAPIKey finds the API key with fixed precedence: the explicit flag,
// the process environment, a .env file in the working directory, then one in
// the home directory. The first non-blank value wins.
func ResolveAPIKey(flagValue string, log *logrus.Logger) (string, error) {
	if key := strings.TrimSpace(flagValue); key != "" {
		return key, nil
	}
	if key := strings.TrimSpace(os.Getenv(EnvAPIKey)); key != "" {
		return key, nil
	}

	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, credentialFileName))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, credentialFileName))
	}
	for _, path := range paths {
		vars, err := godotenv.Read(path)
		if err != nil {
			continue
		}
		warnIfWorldReadable(path, log)
		if key := strings.TrimSpace(vars[EnvAPIKey]); key != "" {
			return key, nil
		}
	}

	return "", clierr.New(clierr.Config,
		"API key not found; checked in order: --api-key flag, $%s, ./%s, ~/%s",
		EnvAPIKey, credentialFileName, credentialFileName)
}

// ValidateAPIKey catches obviously broken keys before any request is made.
func ValidateAPIKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return clierr.New(clierr.Config, "API key is empty")
	}
	if len(key) < 10 {
		return clierr.New(clierr.Config, "API key looks too short; verify the value")
	}
	return nil
}

func warnIfWorldReadable(path string, log *logrus.Logger) {
	if runtime.GOOS == "windows" || log == nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o004 != 0 {
		log.Warn(fmt.Sprintf("%s is world-readable; consider: chmod 600 %s", path, path))
	}
}
