// Package hostinfo reports the CPU model and OS version strings that go
// into a capture session's lead record.
package hostinfo

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

// cpuInfo is a package-level variable so tests can stub out procfs
// without requiring a real /proc mount.
var cpuInfo = func() (string, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return "", err
	}
	infos, err := fs.CPUInfo()
	if err != nil {
		return "", err
	}
	if len(infos) == 0 {
		return "", fmt.Errorf("hostinfo: /proc/cpuinfo reported no processors")
	}
	return infos[0].ModelName, nil
}

// CPUModel returns the host's CPU model name, or an empty string if it
// could not be determined.
func CPUModel() string {
	model, err := cpuInfo()
	if err != nil {
		return ""
	}
	return model
}

func trim(s string) string {
	return strings.TrimSpace(s)
}

func splitKV(line string, sep byte) (string, string) {
	if i := strings.IndexByte(line, sep); i >= 0 {
		return line[:i], line[i+1:]
	}
	return line, ""
}

func unquote(s string) string {
	s = trim(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func readOSRelease(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	var name, version, prettyName string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value := splitKV(scanner.Text(), '=')
		switch trim(key) {
		case "NAME":
			name = unquote(value)
		case "VERSION":
			version = unquote(value)
		case "PRETTY_NAME":
			prettyName = unquote(value)
		}
	}
	if prettyName != "" {
		return prettyName
	}
	if name != "" {
		if version != "" {
			return name + " " + version
		}
		return name
	}
	return ""
}

func readLSBRelease(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value := splitKV(scanner.Text(), '=')
		if trim(key) == "DISTRIB_DESCRIPTION" {
			return unquote(value)
		}
	}
	return ""
}

func readIssue(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return ""
	}
	line := scanner.Text()
	var b strings.Builder
	for i := 0; i < len(line); i++ {
		if line[i] == '\\' {
			i++
			continue
		}
		b.WriteByte(line[i])
	}
	return trim(b.String())
}

func distribVersion() string {
	if v := readOSRelease("/etc/os-release"); v != "" {
		return v
	}
	if v := readLSBRelease("/etc/lsb-release"); v != "" {
		return v
	}
	return readIssue("/etc/issue")
}

var unameFn = unix.Uname

func kernelVersion() string {
	var u unix.Utsname
	if err := unameFn(&u); err != nil {
		return ""
	}
	sysname := nullTerminatedString(u.Sysname[:])
	release := nullTerminatedString(u.Release[:])
	if sysname == "" && release == "" {
		return ""
	}
	return strings.TrimSpace(sysname + " " + release)
}

func nullTerminatedString(b []byte) string {
	raw := make([]byte, len(b))
	for i, c := range b {
		raw[i] = byte(c)
	}
	if i := strings.IndexByte(string(raw), 0); i >= 0 {
		return string(raw[:i])
	}
	return string(raw)
}

// OSVersion returns a human-readable OS description combining the
// distribution's own self-description with the kernel name and release,
// e.g. "Ubuntu 22.04.3 LTS, Linux 6.2.0-39-generic".
func OSVersion() string {
	distrib := distribVersion()
	kernel := kernelVersion()
	switch {
	case distrib == "":
		return kernel
	case kernel == "":
		return distrib
	default:
		return distrib + ", " + kernel
	}
}
