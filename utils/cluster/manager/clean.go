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
package manager

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pingcap/errors"
	"github.com/wentaojin/pounder/utils/cluster"
	"github.com/wentaojin/pounder/utils/stringutil"
	"go.uber.org/zap"
)

// CheckCleanable reports whether base looks like a base location created by a session:
// an existing directory holding both logs/ and data/
func CheckCleanable(base string) error {
	if base == "" {
		return errors.New("base location is not set")
	}
	if stringutil.IsPathNotExist(base) {
		return errors.Errorf("base location [%s] does not exist yet", base)
	}
	if !stringutil.IsDir(base) {
		return errors.Errorf("base location [%s] is not a directory", base)
	}
	for _, sub := range []string{cluster.LogDirName, cluster.DataDirName} {
		if !stringutil.IsDir(filepath.Join(base, sub)) {
			return errors.Errorf("base location [%s] has no %s/ directory, refusing to delete it", base, sub)
		}
	}
	return nil
}

// Clean deletes the base location of the topology, copying it into backupTo first when
// set. It refuses while servers are running. It returns the backup directory.
func (c *Controller) Clean(backupTo string) (string, error) {
	if n := c.Registry.Len(); n > 0 {
		return "", errors.Errorf("%d servers are still running, stop them first", n)
	}
	return CleanBaseLocation(c.Topology().BaseDir(), backupTo)
}

// CleanBaseLocation deletes base once CheckCleanable accepted it
func CleanBaseLocation(base, backupTo string) (string, error) {
	if err := CheckCleanable(base); err != nil {
		return "", err
	}
	var backup string
	if backupTo != "" {
		backup = filepath.Join(backupTo, filepath.Base(base)+"-"+time.Now().Format("20060102150405"))
		if err := stringutil.CopyDir(base, backup); err != nil {
			return "", errors.Annotatef(err, "back up base location [%s]", base)
		}
		zap.L().Info("base location backed up", zap.String("base", base), zap.String("backup", backup))
	}
	if err := os.RemoveAll(base); err != nil {
		return backup, errors.Annotatef(err, "delete base location [%s]", base)
	}
	zap.L().Info("base location deleted", zap.String("base", base))
	return backup, nil
}
