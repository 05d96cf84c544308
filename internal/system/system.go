// Package system reports on the host's ffmpeg installation: whether it is
// present, where, and which version, so stageviewd can log a clear
// diagnostic before asking the encoder registry to probe it.
package system

import (
	"bufio"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// DependencyStatus describes whether an external binary dependency is
// present on the host and which version was found.
type DependencyStatus struct {
	Name           string `json:"name"`
	Installed      bool   `json:"installed"`
	Path           string `json:"path"`
	Version        string `json:"version"`
	InstallCommand string `json:"install_command"`
}

// CheckFFmpeg locates the ffmpeg binary on PATH and reports its version,
// falling back to a platform-appropriate install command when absent.
func CheckFFmpeg() DependencyStatus {
	status := DependencyStatus{
		Name:           "ffmpeg",
		InstallCommand: getFFmpegInstallCommand(),
	}

	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return status
	}

	status.Installed = true
	status.Path = path

	cmd := exec.Command("ffmpeg", "-version")
	output, err := cmd.Output()
	if err == nil {
		lines := strings.Split(string(output), "\n")
		if len(lines) > 0 {
			parts := strings.Fields(lines[0])
			if len(parts) >= 3 {
				status.Version = parts[2]
			}
		}
	}

	return status
}

func getFFmpegInstallCommand() string {
	switch detectOS() {
	case "windows":
		return "winget install ffmpeg"
	case "debian", "ubuntu":
		return "sudo apt install ffmpeg"
	case "fedora":
		return "sudo dnf install ffmpeg"
	case "arch":
		return "sudo pacman -S ffmpeg"
	case "darwin":
		return "brew install ffmpeg"
	case "alpine":
		return "sudo apk add ffmpeg"
	default:
		return "# Install ffmpeg using your package manager"
	}
}

func detectOS() string {
	switch runtime.GOOS {
	case "windows":
		return "windows"
	case "darwin":
		return "darwin"
	}

	if runtime.GOOS != "linux" {
		return runtime.GOOS
	}

	releaseFile := "/etc/os-release"
	file, err := os.Open(releaseFile)
	if err != nil {
		return "linux"
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "ID=") {
			id := strings.TrimPrefix(line, "ID=")
			id = strings.Trim(id, "\"")
			return strings.ToLower(id)
		}
	}

	if _, err := os.Stat("/etc/debian_version"); err == nil {
		return "debian"
	}
	if _, err := os.Stat("/etc/fedora-release"); err == nil {
		return "fedora"
	}
	if _, err := os.Stat("/etc/arch-release"); err == nil {
		return "arch"
	}

	return "linux"
}
