package agentloop

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024 // 32KB

const basePrompt = `You are a capable software engineering agent. You work on the
user's task autonomously: inspect the project, make changes with your
tools, and verify them. Prefer small, targeted edits over wholesale
rewrites. When a task is done, summarize what changed and why.`

const subagentBasePrompt = `You are a focused worker agent. Complete the single task you
were given and nothing else. You cannot ask the user questions; make
reasonable assumptions and note them in your final summary.`

// BuildSystemPrompt assembles the full system prompt for a loop: base
// instructions, environment context, git state, the available tools,
// discovered project docs, and any user instructions.
func BuildSystemPrompt(env ExecutionEnvironment, registry *ToolRegistry, cfg Config) string {
	var sb strings.Builder
	sb.WriteString(basePrompt)
	sb.WriteString("\n\n")
	sb.WriteString(BuildEnvironmentContext(env, cfg.Model))

	if git := GetGitContext(env.WorkingDirectory()); git != "" {
		sb.WriteString("\n\n")
		sb.WriteString(git)
	}

	if registry != nil && registry.Count() > 0 {
		sb.WriteString("\n\nAvailable tools: ")
		sb.WriteString(strings.Join(registry.Names(), ", "))
	}

	if docs := DiscoverProjectDocs(env.WorkingDirectory()); docs != "" {
		sb.WriteString("\n\n<project_instructions>\n")
		sb.WriteString(docs)
		sb.WriteString("\n</project_instructions>")
	}

	if cfg.UserInstructions != "" {
		sb.WriteString("\n\n<user_instructions>\n")
		sb.WriteString(cfg.UserInstructions)
		sb.WriteString("\n</user_instructions>")
	}

	return sb.String()
}

// SubagentSystemPrompt builds the system prompt for a spawned subagent.
// The task statement is folded into the prompt so the child loop starts
// with full context and no dependence on the parent's history.
func SubagentSystemPrompt(env ExecutionEnvironment, task string) string {
	var sb strings.Builder
	sb.WriteString(subagentBasePrompt)
	sb.WriteString("\n\n")
	sb.WriteString(BuildEnvironmentContext(env, ""))
	sb.WriteString("\n\nYour task:\n")
	sb.WriteString(task)
	return sb.String()
}

// BuildEnvironmentContext generates the structured environment context block.
func BuildEnvironmentContext(env ExecutionEnvironment, model string) string {
	workingDir := env.WorkingDirectory()
	isGitRepo := isGitRepository(workingDir)
	gitBranch := ""
	if isGitRepo {
		gitBranch = getGitBranch(workingDir)
	}

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", workingDir)
	fmt.Fprintf(&sb, "Is git repository: %v\n", isGitRepo)
	if gitBranch != "" {
		fmt.Fprintf(&sb, "Git branch: %s\n", gitBranch)
	}
	fmt.Fprintf(&sb, "Platform: %s\n", env.Platform())
	fmt.Fprintf(&sb, "OS version: %s\n", env.OSVersion())
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs finds and loads project instruction files. It walks
// from the git root (or working directory) to the working directory
// looking for AGENTS.md files, capped at 32KB total.
func DiscoverProjectDocs(workingDir string) string {
	root := gitRoot(workingDir)
	if root == "" {
		root = workingDir
	}

	var docs []string
	totalBytes := 0

	dirs := collectPathHierarchy(root, workingDir)

	for _, dir := range dirs {
		path := filepath.Join(dir, "AGENTS.md")
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		remaining := maxProjectDocBytes - totalBytes
		if remaining <= 0 {
			docs = append(docs, "[Project instructions truncated at 32KB]")
			return strings.Join(docs, "\n\n---\n\n")
		}

		text := string(content)
		if len(text) > remaining {
			text = text[:remaining] + "\n[Project instructions truncated at 32KB]"
		}

		header := fmt.Sprintf("# AGENTS.md (from %s)", dir)
		docs = append(docs, header+"\n\n"+text)
		totalBytes += len(text)
	}

	if len(docs) == 0 {
		return ""
	}
	return strings.Join(docs, "\n\n---\n\n")
}

// GetGitContext returns a summary of the git state for the system prompt.
func GetGitContext(workingDir string) string {
	root := gitRoot(workingDir)
	if root == "" {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("<git_context>\n")

	branch := getGitBranch(root)
	if branch != "" {
		fmt.Fprintf(&sb, "Branch: %s\n", branch)
	}

	status := runGitCommand(root, "status", "--short")
	if status != "" {
		lines := strings.Split(strings.TrimSpace(status), "\n")
		fmt.Fprintf(&sb, "Modified/untracked files: %d\n", len(lines))
	}

	log := runGitCommand(root, "log", "--oneline", "-10")
	if log != "" {
		sb.WriteString("Recent commits:\n")
		sb.WriteString(log)
		sb.WriteString("\n")
	}

	sb.WriteString("</git_context>")
	return sb.String()
}

// collectPathHierarchy returns directories from root to target, inclusive.
func collectPathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)

	if root == target {
		return []string{root}
	}

	var dirs []string
	dirs = append(dirs, root)

	rel, err := filepath.Rel(root, target)
	if err != nil {
		return dirs
	}

	parts := strings.Split(rel, string(filepath.Separator))
	current := root
	for _, part := range parts {
		if part == "." {
			continue
		}
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func isGitRepository(dir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = dir
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

func gitRoot(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func getGitBranch(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func runGitCommand(dir string, args ...string) string {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return string(out)
}
