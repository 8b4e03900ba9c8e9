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
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/wentaojin/pounder/component"
	"github.com/wentaojin/pounder/component/cluster/command"
	"github.com/wentaojin/pounder/logger"
)

func main() {
	app := &command.App{}
	root := component.WrapCmd(app).AddCommand(
		component.WrapCmd(app.AppGenerate()),
		component.WrapCmd(app.AppDisplay()),
		component.WrapCmd(app.AppTool()),
		component.WrapCmd(app.AppUp()),
		component.WrapCmd(app.AppClean()),
	)

	err := root.Execute()
	if err != nil {
		logger.Error("pounder command failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, color.RedString("Error: %v", err))
	}
	if serr := logger.Sync(); serr != nil {
		fmt.Fprintln(os.Stderr, color.RedString("sync log: %v", serr))
	}
	if err != nil {
		os.Exit(1)
	}
}
