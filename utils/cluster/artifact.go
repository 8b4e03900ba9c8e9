/*
Copyright © 2020 Marvin

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cluster

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pingcap/errors"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/wentaojin/pounder/utils/cluster/embed/config"
	"github.com/wentaojin/pounder/utils/stringutil"
)

// Artifact is the configuration file of one stripe
type Artifact struct {
	// StripeIndex is 1-based
	StripeIndex int
	StripeName  string
	Path        string
	Content     []byte
}

type NoticeKind string

const (
	NoticeWritten NoticeKind = "written"
	NoticeKept    NoticeKind = "kept"
)

// Notice tells the caller what happened to one artifact file. A kept file may differ
// from the topology, Diverged and Diff describe how.
type Notice struct {
	Kind     NoticeKind
	Stripe   string
	Path     string
	Diverged bool
	Diff     string
}

func (n Notice) String() string {
	switch {
	case n.Kind == NoticeKept && n.Diverged:
		return fmt.Sprintf("config already found, kept %s (differs from the topology)", n.Path)
	case n.Kind == NoticeKept:
		return fmt.Sprintf("config already found, kept %s", n.Path)
	default:
		return fmt.Sprintf("config written to %s", n.Path)
	}
}

type GenerateOptions struct {
	KitDir         string
	ForceOverwrite bool
	Enterprise     bool
}

type GenerateResult struct {
	Artifacts []*Artifact
	Notices   []Notice
}

// Paths returns the artifact paths sorted by name
func (r *GenerateResult) Paths() []string {
	paths := make([]string, 0, len(r.Artifacts))
	for _, a := range r.Artifacts {
		paths = append(paths, a.Path)
	}
	sort.Strings(paths)
	return paths
}

// StripePaths maps each stripe name to its artifact path
func (r *GenerateResult) StripePaths() map[string]string {
	m := make(map[string]string, len(r.Artifacts))
	for _, a := range r.Artifacts {
		m[a.StripeName] = a.Path
	}
	return m
}

// ArtifactFileName returns the configuration file name of a 1-based stripe index
func ArtifactFileName(stripe int) string {
	return fmt.Sprintf(artifactNamePattern, stripe)
}

// GenerateArtifacts writes one configuration file per stripe into opts.KitDir. The
// topology is validated first and nothing is written when it is invalid. An existing
// file is kept verbatim unless opts.ForceOverwrite is set.
func GenerateArtifacts(topo *Topology, opts GenerateOptions) (*GenerateResult, error) {
	if err := topo.Validate(opts.Enterprise); err != nil {
		return nil, err
	}
	// render every stripe before touching the disk
	rendered := make([][]byte, len(topo.Stripes))
	for i := range topo.Stripes {
		content, err := RenderStripe(topo, i+1, opts.Enterprise)
		if err != nil {
			return nil, err
		}
		rendered[i] = content
	}

	if err := stringutil.CreateDir(opts.KitDir); err != nil {
		return nil, &ConfigWriteError{Path: opts.KitDir, Err: err}
	}

	res := &GenerateResult{}
	for i, content := range rendered {
		stripe := i + 1
		art := &Artifact{
			StripeIndex: stripe,
			StripeName:  StripeName(stripe),
			Path:        filepath.Join(opts.KitDir, ArtifactFileName(stripe)),
		}

		existing, err := os.ReadFile(art.Path)
		switch {
		case err == nil && !opts.ForceOverwrite:
			art.Content = existing
			notice := Notice{Kind: NoticeKept, Stripe: art.StripeName, Path: art.Path}
			if !bytes.Equal(existing, content) {
				notice.Diverged = true
				notice.Diff = lineDiff(string(existing), string(content))
			}
			res.Notices = append(res.Notices, notice)
		case err != nil && !os.IsNotExist(err):
			return nil, &ConfigWriteError{Path: art.Path, Err: err}
		default:
			if err = writeArtifact(art.Path, content); err != nil {
				return nil, err
			}
			art.Content = content
			res.Notices = append(res.Notices, Notice{Kind: NoticeWritten, Stripe: art.StripeName, Path: art.Path})
		}
		res.Artifacts = append(res.Artifacts, art)
	}
	return res, nil
}

// writeArtifact replaces the file through a rename so a reader never sees half a file
func writeArtifact(path string, content []byte) error {
	tmp := path + ".tmp"
	if err := stringutil.WriteFile(tmp, content, 0644); err != nil {
		return &ConfigWriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return &ConfigWriteError{Path: path, Err: err}
	}
	return nil
}

// RenderStripe renders the configuration of a 1-based stripe index without writing it
func RenderStripe(topo *Topology, stripe int, enterprise bool) ([]byte, error) {
	if stripe < 1 || stripe > len(topo.Stripes) {
		return nil, errors.Errorf("stripe index [%d] out of range [1, %d]", stripe, len(topo.Stripes))
	}
	tc := &config.TcConfig{
		Enterprise:      enterprise,
		ReconnectWindow: topo.GlobalOptions.ReconnectWindow,
	}
	for _, o := range topo.OffheapResources {
		tc.OffheapResources = append(tc.OffheapResources, config.OffheapResource{Name: o.Name, Unit: o.Unit, Size: o.Size})
	}

	if enterprise {
		for _, r := range topo.ResolvedDataRoots() {
			switch r.Role {
			case DataRootBackup:
				tc.BackupLocation = r.Path
			default:
				tc.DataDirectories = append(tc.DataDirectories, config.DataDirectory{
					Name:           r.ID,
					Path:           r.Path,
					UseForPlatform: r.Role == DataRootPlatform,
				})
			}
		}
		tc.SecurityRootDir = topo.ServerSecurityRootDir()
	}

	for _, s := range topo.Stripes[stripe-1].Servers {
		tc.Servers = append(tc.Servers, config.Server{
			Host:      s.Host,
			Name:      s.Name,
			LogDir:    s.LogDir,
			Port:      s.Port,
			GroupPort: s.GroupPort,
		})
	}

	if topo.Failover() == FailoverConsistency {
		voters, err := topo.VoterCount()
		if err != nil {
			return nil, err
		}
		tc.Consistency = true
		tc.Voters = voters
	}
	return tc.Config()
}

// lineDiff returns the changed lines between the kept and the rendered content,
// prefixed with - and +
func lineDiff(kept, fresh string) string {
	var lines []string
	index := make(map[string]rune)
	// one valid rune per distinct line, so the diff never splits a line
	encode := func(text string) []rune {
		var out []rune
		for _, line := range strings.SplitAfter(text, "\n") {
			if line == "" {
				continue
			}
			r, ok := index[line]
			if !ok {
				r = lineRune(len(lines))
				index[line] = r
				lines = append(lines, line)
			}
			out = append(out, r)
		}
		return out
	}
	a, b := encode(kept), encode(fresh)
	decode := make(map[rune]string, len(lines))
	for line, r := range index {
		decode[r] = line
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMainRunes(a, b, false)
	for i := range diffs {
		var sb strings.Builder
		for _, r := range diffs[i].Text {
			sb.WriteString(decode[r])
		}
		diffs[i].Text = sb.String()
	}

	var sb strings.Builder
	for _, d := range diffs {
		var prefix string
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "- "
		case diffmatchpatch.DiffInsert:
			prefix = "+ "
		default:
			continue
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			sb.WriteString(prefix)
			sb.WriteString(strings.TrimRight(line, "\n"))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// lineRune maps a line number to a rune outside the surrogate range
func lineRune(n int) rune {
	r := rune(n + 1)
	if r >= 0xD800 {
		r += 0x800
	}
	return r
}
