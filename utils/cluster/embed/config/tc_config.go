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
package config

import (
	"bytes"
	"encoding/xml"
	"path"
	"text/template"

	"github.com/pingcap/errors"

	"github.com/wentaojin/pounder/utils/cluster/embed"
)

// TcConfig is the data of one stripe configuration file
type TcConfig struct {
	Enterprise bool

	OffheapResources []OffheapResource
	DataDirectories  []DataDirectory
	BackupLocation   string
	SecurityRootDir  string

	Servers         []Server
	ReconnectWindow int

	Consistency bool
	Voters      int
}

type OffheapResource struct {
	Name string
	Unit string
	Size int
}

type DataDirectory struct {
	Name           string
	Path           string
	UseForPlatform bool
}

type Server struct {
	Host      string
	Name      string
	LogDir    string
	Port      int
	GroupPort int
}

// Config generate the config file data.
func (c *TcConfig) Config() ([]byte, error) {
	fp := path.Join("templates", "config", "tc-config.xml.tmpl")
	tpl, err := embed.ReadTemplate(fp)
	if err != nil {
		return nil, errors.Annotatef(err, "read template [%s]", fp)
	}
	return c.ConfigWithTemplate(string(tpl))
}

// ConfigWithTemplate generate the config file data with a custom template.
func (c *TcConfig) ConfigWithTemplate(tpl string) ([]byte, error) {
	tmpl, err := template.New("tc-config").Funcs(template.FuncMap{"xml": escapeXML}).Parse(tpl)
	if err != nil {
		return nil, errors.Annotate(err, "parse tc-config template")
	}
	content := bytes.NewBufferString("")
	if err = tmpl.Execute(content, c); err != nil {
		return nil, errors.Annotate(err, "render tc-config template")
	}
	return content.Bytes(), nil
}

func escapeXML(s string) (string, error) {
	var b bytes.Buffer
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return "", err
	}
	return b.String(), nil
}
