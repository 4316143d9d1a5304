package backend

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/skillpanes/internal/skills"
)

const gitTimeout = 5 * time.Second

// InitialPrompt wraps the first request of a skill session with a short
// description of the environment.
func InitialPrompt(ctx context.Context, projectsDir string, args skills.Args) string {
	var b strings.Builder
	b.WriteString("[Environment]\n")
	b.WriteString(EnvironmentContext(ctx, projectsDir, args.Project))
	b.WriteString("\n\nUser request: ")
	b.WriteString(args.Task)
	if args.Project != "" {
		b.WriteString("\nProject: ")
		b.WriteString(args.Project)
	}
	return b.String()
}

// EnvironmentContext lists date, platform, shell and projects directory,
// plus git status and recent commits when project is a repository.
func EnvironmentContext(ctx context.Context, projectsDir, project string) string {
	shell := filepath.Base(os.Getenv("SHELL"))
	if shell == "." || shell == "" {
		shell = "sh"
	}
	lines := []string{
		"Date: " + time.Now().Format("2006-01-02"),
		fmt.Sprintf("Platform: %s/%s", runtime.GOOS, runtime.GOARCH),
		"Shell: " + shell,
		"Projects directory: " + projectsDir,
	}

	if project == "" {
		return strings.Join(lines, "\n")
	}
	dir := filepath.Join(projectsDir, filepath.Clean("/"+project))
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return strings.Join(lines, "\n")
	}

	if out, ok := git(ctx, dir, "status", "--short", "--branch"); ok {
		lines = append(lines, fmt.Sprintf("Git (%s): %s", filepath.Base(dir), out))
	}
	if out, ok := git(ctx, dir, "log", "--oneline", "-5"); ok {
		lines = append(lines, "Recent commits:\n"+out)
	}
	return strings.Join(lines, "\n")
}

func git(ctx context.Context, dir string, args ...string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(out)), true
}
