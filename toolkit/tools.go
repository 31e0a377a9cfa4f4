package toolkit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelab/agentrun/orchestrator"
)

// Options tunes the registered tool set.
type Options struct {
	DefaultShellTimeout time.Duration // default 2 minutes
	MaxShellTimeout     time.Duration // default 10 minutes
}

func (o *Options) normalize() {
	if o.DefaultShellTimeout <= 0 {
		o.DefaultShellTimeout = 2 * time.Minute
	}
	if o.MaxShellTimeout <= 0 {
		o.MaxShellTimeout = 10 * time.Minute
	}
}

// Parameter structs for the built-in tools. Schemas are reflected from
// these; fields without omitempty are required.

type readFileParams struct {
	Path   string `json:"path" jsonschema:"description=Path to the file to read. Relative paths resolve against the working directory."`
	Offset int    `json:"offset,omitempty" jsonschema:"description=1-based line number to start reading from."`
	Limit  int    `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to read. Default: 2000."`
}

type writeFileParams struct {
	Path    string `json:"path" jsonschema:"description=Path to write to. Parent directories are created as needed."`
	Content string `json:"content" jsonschema:"description=The full file content to write."`
}

type editFileParams struct {
	Path       string `json:"path" jsonschema:"description=Path to the file to edit."`
	OldString  string `json:"old_string" jsonschema:"description=Exact text to find in the file."`
	NewString  string `json:"new_string" jsonschema:"description=Replacement text."`
	ReplaceAll bool   `json:"replace_all,omitempty" jsonschema:"description=Replace all occurrences. Default: false."`
}

type shellParams struct {
	Command   string `json:"command" jsonschema:"description=The shell command to run."`
	TimeoutMs int    `json:"timeout_ms,omitempty" jsonschema:"description=Override the default command timeout in milliseconds."`
}

type grepParams struct {
	Pattern         string `json:"pattern" jsonschema:"description=Regex pattern to search for."`
	Path            string `json:"path,omitempty" jsonschema:"description=Directory or file to search. Default: working directory."`
	GlobFilter      string `json:"glob_filter,omitempty" jsonschema:"description=File pattern filter (e.g. \"*.go\")."`
	CaseInsensitive bool   `json:"case_insensitive,omitempty" jsonschema:"description=Case insensitive search. Default: false."`
	MaxResults      int    `json:"max_results,omitempty" jsonschema:"description=Maximum number of results. Default: 100."`
}

type globParams struct {
	Pattern string `json:"pattern" jsonschema:"description=Glob pattern (e.g. \"**/*.go\")."`
	Path    string `json:"path,omitempty" jsonschema:"description=Base directory. Default: working directory."`
}

type listDirParams struct {
	Path string `json:"path" jsonschema:"description=Directory to list."`
}

// Register adds the built-in tools to a registry, delegating to env.
func Register(reg *orchestrator.Registry, env Environment, opts Options) {
	opts.normalize()
	registerReadFile(reg, env)
	registerWriteFile(reg, env)
	registerEditFile(reg, env)
	registerShell(reg, env, opts)
	registerGrep(reg, env)
	registerGlob(reg, env)
	registerListDir(reg, env)
}

func registerReadFile(reg *orchestrator.Registry, env Environment) {
	reg.Register(orchestrator.RegisteredTool{
		Definition: orchestrator.Definition{
			Name:        "read_file",
			Description: "Read a file from the filesystem. Returns line-numbered content.",
			Parameters:  schemaFor(&readFileParams{}),
		},
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			path, ok := orchestrator.GetString(params, "path")
			if !ok || path == "" {
				return "", fmt.Errorf("path is required")
			}
			offset, _ := orchestrator.GetInt(params, "offset")
			limit, _ := orchestrator.GetInt(params, "limit")
			if limit == 0 {
				limit = 2000
			}
			out, err := env.ReadFile(path, offset, limit)
			if err != nil {
				return "", err
			}
			return truncateToolOutput(out, "read_file"), nil
		},
	})
}

func registerWriteFile(reg *orchestrator.Registry, env Environment) {
	reg.Register(orchestrator.RegisteredTool{
		Definition: orchestrator.Definition{
			Name:        "write_file",
			Description: "Write content to a file. Creates the file and parent directories if needed.",
			Parameters:  schemaFor(&writeFileParams{}),
		},
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			path, ok := orchestrator.GetString(params, "path")
			if !ok || path == "" {
				return "", fmt.Errorf("path is required")
			}
			content, ok := orchestrator.GetString(params, "content")
			if !ok {
				return "", fmt.Errorf("content is required")
			}
			if err := env.WriteFile(path, content); err != nil {
				return "", err
			}
			return fmt.Sprintf("Successfully wrote %d bytes to %s", len(content), path), nil
		},
	})
}

func registerEditFile(reg *orchestrator.Registry, env Environment) {
	reg.Register(orchestrator.RegisteredTool{
		Definition: orchestrator.Definition{
			Name: "edit_file",
			Description: "Replace an exact string occurrence in a file. The old_string must be unique " +
				"in the file unless replace_all is true.",
			Parameters: schemaFor(&editFileParams{}),
		},
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			path, ok := orchestrator.GetString(params, "path")
			if !ok || path == "" {
				return "", fmt.Errorf("path is required")
			}
			oldString, ok := orchestrator.GetString(params, "old_string")
			if !ok || oldString == "" {
				return "", fmt.Errorf("old_string is required")
			}
			newString, _ := orchestrator.GetString(params, "new_string")
			replaceAll, _ := orchestrator.GetBool(params, "replace_all")

			content, err := env.ReadRaw(path)
			if err != nil {
				return "", fmt.Errorf("file not found: %s", path)
			}

			count := strings.Count(content, oldString)
			if count == 0 {
				return "", fmt.Errorf("old_string not found in %s", path)
			}
			if count > 1 && !replaceAll {
				return "", fmt.Errorf("old_string found %d times in %s. Provide more context to make it unique, or set replace_all=true", count, path)
			}

			var newContent string
			if replaceAll {
				newContent = strings.ReplaceAll(content, oldString, newString)
			} else {
				newContent = strings.Replace(content, oldString, newString, 1)
			}
			if err := env.WriteFile(path, newContent); err != nil {
				return "", err
			}

			replacements := 1
			if replaceAll {
				replacements = count
			}
			return fmt.Sprintf("Successfully replaced %d occurrence(s) in %s", replacements, path), nil
		},
	})
}

func registerShell(reg *orchestrator.Registry, env Environment, opts Options) {
	reg.Register(orchestrator.RegisteredTool{
		Definition: orchestrator.Definition{
			Name:        "shell",
			Description: "Execute a shell command in the working directory. Returns stdout, stderr, and exit code.",
			Parameters:  schemaFor(&shellParams{}),
		},
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			command, ok := orchestrator.GetString(params, "command")
			if !ok || command == "" {
				return "", fmt.Errorf("command is required")
			}
			timeout := opts.DefaultShellTimeout
			if ms, ok := orchestrator.GetInt(params, "timeout_ms"); ok && ms > 0 {
				timeout = time.Duration(ms) * time.Millisecond
			}
			if timeout > opts.MaxShellTimeout {
				timeout = opts.MaxShellTimeout
			}

			result, err := env.ExecCommand(ctx, command, timeout, "")
			if err != nil {
				return "", err
			}

			var sb strings.Builder
			sb.WriteString(result.Output())
			if result.TimedOut {
				fmt.Fprintf(&sb, "\n\n[ERROR: Command timed out after %s. Partial output is shown above. "+
					"You can retry with a longer timeout via the timeout_ms parameter.]", timeout)
			}
			if result.ExitCode != 0 && !result.TimedOut {
				fmt.Fprintf(&sb, "\n\n[Exit code: %d]", result.ExitCode)
			}
			return truncateToolOutput(sb.String(), "shell"), nil
		},
	})
}

func registerGrep(reg *orchestrator.Registry, env Environment) {
	reg.Register(orchestrator.RegisteredTool{
		Definition: orchestrator.Definition{
			Name:        "grep",
			Description: "Search file contents using regex patterns. Returns matching lines with file paths and line numbers.",
			Parameters:  schemaFor(&grepParams{}),
		},
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			pattern, ok := orchestrator.GetString(params, "pattern")
			if !ok || pattern == "" {
				return "", fmt.Errorf("pattern is required")
			}
			path, _ := orchestrator.GetString(params, "path")
			globFilter, _ := orchestrator.GetString(params, "glob_filter")
			caseInsensitive, _ := orchestrator.GetBool(params, "case_insensitive")
			maxResults, _ := orchestrator.GetInt(params, "max_results")
			if maxResults <= 0 {
				maxResults = 100
			}

			out, err := env.Grep(ctx, pattern, path, GrepOptions{
				GlobFilter:      globFilter,
				CaseInsensitive: caseInsensitive,
				MaxResults:      maxResults,
			})
			if err != nil {
				return "", err
			}
			if out == "" {
				return "No matches found.", nil
			}
			return truncateToolOutput(out, "grep"), nil
		},
	})
}

func registerGlob(reg *orchestrator.Registry, env Environment) {
	reg.Register(orchestrator.RegisteredTool{
		Definition: orchestrator.Definition{
			Name:        "glob",
			Description: "Find files matching a glob pattern.",
			Parameters:  schemaFor(&globParams{}),
		},
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			pattern, ok := orchestrator.GetString(params, "pattern")
			if !ok || pattern == "" {
				return "", fmt.Errorf("pattern is required")
			}
			path, _ := orchestrator.GetString(params, "path")

			matches, err := env.Glob(pattern, path)
			if err != nil {
				return "", err
			}
			if len(matches) == 0 {
				return "No files matched the pattern.", nil
			}
			return truncateToolOutput(strings.Join(matches, "\n"), "glob"), nil
		},
	})
}

func registerListDir(reg *orchestrator.Registry, env Environment) {
	reg.Register(orchestrator.RegisteredTool{
		Definition: orchestrator.Definition{
			Name:        "list_dir",
			Description: "List the entries of a directory.",
			Parameters:  schemaFor(&listDirParams{}),
		},
		Handler: func(ctx context.Context, params map[string]any) (string, error) {
			path, ok := orchestrator.GetString(params, "path")
			if !ok || path == "" {
				return "", fmt.Errorf("path is required")
			}
			entries, err := env.ListDirectory(path)
			if err != nil {
				return "", err
			}
			if len(entries) == 0 {
				return "Directory is empty.", nil
			}

			var sb strings.Builder
			for _, e := range entries {
				if e.IsDir {
					fmt.Fprintf(&sb, "%s/\n", e.Name)
				} else {
					fmt.Fprintf(&sb, "%s (%d bytes)\n", e.Name, e.Size)
				}
			}
			return truncateToolOutput(strings.TrimRight(sb.String(), "\n"), "list_dir"), nil
		},
	})
}
