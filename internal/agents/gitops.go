package agents

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/qaforge/qaforge/internal/domain"
	"github.com/qaforge/qaforge/internal/errs"
)

// GitOps writes generated test files to disk and, when configured, commits
// them to the automation repository.
type GitOps struct {
	repoURL   string
	token     string
	workspace string
	testsPath string
	log       zerolog.Logger
}

func NewGitOps(repoURL, token, workspace, testsPath string, log zerolog.Logger) *GitOps {
	return &GitOps{
		repoURL:   repoURL,
		token:     token,
		workspace: workspace,
		testsPath: testsPath,
		log:       log.With().Str("agent", "gitops").Logger(),
	}
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

func slug(s string) string {
	s = slugRe.ReplaceAllString(strings.ToLower(s), "-")
	return strings.Trim(s, "-")
}

// WriteTestFiles writes one .spec.ts per scenario with valid code under the
// local workspace. Scenarios whose code is an error placeholder are skipped.
func (g *GitOps) WriteTestFiles(suite *domain.TestSuite) ([]string, error) {
	dir := filepath.Join(g.workspace, slug(suite.StoryKey))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.Upstream, err, "create workspace dir")
	}

	var files []string
	for i := range suite.Scenarios {
		sc := &suite.Scenarios[i]
		if !sc.HasValidCode() {
			g.log.Debug().Str("scenario", sc.ID).Msg("skipping scenario without valid code")
			continue
		}
		name := fmt.Sprintf("%s-%s.spec.ts", slug(sc.ID), slug(sc.Title))
		path := filepath.Join(dir, name)
		content := fileHeader(suite, sc) + sc.PlaywrightCode
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return files, errs.Wrap(errs.Upstream, err, "write %s", path)
		}
		files = append(files, path)
	}
	g.log.Info().Str("story", suite.StoryKey).Int("files", len(files)).Msg("test files written")
	return files, nil
}

func fileHeader(suite *domain.TestSuite, sc *domain.TestScenario) string {
	return fmt.Sprintf("// Story: %s\n// Scenario: %s (%s)\n// Generated: %s by %s\n\n",
		suite.StoryKey, sc.Title, sc.ID,
		suite.GeneratedAt.Format(time.RFC3339), suite.LLMProvider)
}

// CommitAndPush clones the automation repo, copies the written files into
// the configured tests path, and pushes a commit. The access token is
// embedded in the clone URL and scrubbed from anything logged or returned.
func (g *GitOps) CommitAndPush(ctx context.Context, storyKey string, files []string) error {
	if g.repoURL == "" {
		return errs.New(errs.Validation, "GIT_REPO_URL not configured")
	}
	if len(files) == 0 {
		return errs.New(errs.Validation, "no test files to push")
	}

	tmp, err := os.MkdirTemp("", "qaforge-git-*")
	if err != nil {
		return errs.Wrap(errs.Upstream, err, "create clone dir")
	}
	defer os.RemoveAll(tmp)

	cloneURL, err := g.authURL()
	if err != nil {
		return err
	}
	if err := g.git(ctx, "", "clone", "--depth", "1", cloneURL, tmp); err != nil {
		return err
	}

	destDir := filepath.Join(tmp, g.testsPath, slug(storyKey))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errs.Wrap(errs.Upstream, err, "create tests dir")
	}
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return errs.Wrap(errs.Upstream, err, "read %s", f)
		}
		if err := os.WriteFile(filepath.Join(destDir, filepath.Base(f)), data, 0o644); err != nil {
			return errs.Wrap(errs.Upstream, err, "copy %s", filepath.Base(f))
		}
	}

	if err := g.git(ctx, tmp, "config", "user.email", "qaforge@noreply.local"); err != nil {
		return err
	}
	if err := g.git(ctx, tmp, "config", "user.name", "qaforge"); err != nil {
		return err
	}
	if err := g.git(ctx, tmp, "add", "."); err != nil {
		return err
	}

	// Nothing staged means the files already match what is in the repo.
	if err := g.git(ctx, tmp, "diff", "--cached", "--quiet"); err == nil {
		g.log.Info().Str("story", storyKey).Msg("no changes to push")
		return nil
	}

	msg := fmt.Sprintf("test: add generated tests for %s", storyKey)
	if err := g.git(ctx, tmp, "commit", "-m", msg); err != nil {
		return err
	}
	if err := g.git(ctx, tmp, "push"); err != nil {
		return err
	}
	g.log.Info().Str("story", storyKey).Int("files", len(files)).Msg("pushed generated tests")
	return nil
}

func (g *GitOps) authURL() (string, error) {
	u, err := url.Parse(g.repoURL)
	if err != nil {
		return "", errs.Wrap(errs.Validation, err, "parse GIT_REPO_URL")
	}
	if g.token != "" {
		u.User = url.UserPassword("x-access-token", g.token)
	}
	return u.String(), nil
}

func (g *GitOps) git(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := g.scrub(strings.TrimSpace(string(out)))
		return errs.New(errs.Upstream, "git %s: %v: %s", args[0], err, detail)
	}
	return nil
}

func (g *GitOps) scrub(s string) string {
	if g.token == "" {
		return s
	}
	return strings.ReplaceAll(s, g.token, "***")
}
