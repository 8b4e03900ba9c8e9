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
	"path/filepath"
	"runtime"
	"strings"

	"github.com/pingcap/errors"

	"github.com/wentaojin/pounder/utils/stringutil"
)

// Edition of the server kit
type Edition string

const (
	EditionAuto       Edition = "auto"
	EditionEnterprise Edition = "enterprise"
	EditionOpenSource Edition = "opensource"
)

const (
	serverScriptDir      = "server/bin"
	serverScriptName     = "start-tc-server"
	clusterToolScriptDir = "tools/cluster-tool/bin"
	clusterToolName      = "cluster-tool"
	artifactNamePattern  = "tc-config-stripe-%d.xml"
)

// Kit is an unpacked server kit
type Kit struct {
	Path    string
	Edition Edition
}

// DetectKit checks the kit layout, an enterprise kit ships the cluster tool.
// override forces the edition unless it is empty or auto.
func DetectKit(path string, override string) (*Kit, error) {
	if path == "" {
		return nil, errors.New("kit path is not set, use --kit-path or kit-path in the settings file")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Annotatef(err, "resolve kit path [%s]", path)
	}
	if !stringutil.IsDir(abs) {
		return nil, errors.Errorf("kit path [%s] is not a directory", abs)
	}

	kit := &Kit{Path: abs, Edition: EditionOpenSource}
	switch Edition(strings.ToLower(override)) {
	case EditionEnterprise:
		kit.Edition = EditionEnterprise
	case EditionOpenSource:
	case EditionAuto, "":
		if stringutil.IsDir(filepath.Join(abs, filepath.FromSlash(clusterToolScriptDir))) {
			kit.Edition = EditionEnterprise
		}
	default:
		return nil, errors.Errorf("unknown edition [%s], should be one of [auto, enterprise, opensource]", override)
	}
	return kit, nil
}

func (k *Kit) Enterprise() bool {
	return k.Edition == EditionEnterprise
}

// ServerScript returns the server start script of the running platform
func (k *Kit) ServerScript() string {
	return filepath.Join(k.Path, filepath.FromSlash(serverScriptDir), serverScriptName+ScriptSuffix())
}

// ClusterToolScript returns the cluster tool script of the running platform
func (k *Kit) ClusterToolScript() string {
	return filepath.Join(k.Path, filepath.FromSlash(clusterToolScriptDir), clusterToolName+ScriptSuffix())
}

// ArtifactPath returns the configuration file of a 1-based stripe index
func (k *Kit) ArtifactPath(stripe int) string {
	return filepath.Join(k.Path, ArtifactFileName(stripe))
}

// ScriptSuffix returns the script extension of the running platform
func ScriptSuffix() string {
	if runtime.GOOS == "windows" {
		return ".bat"
	}
	return ".sh"
}
