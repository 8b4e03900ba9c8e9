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
package stringutil

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"unsafe"

	"github.com/scylladb/go-set"
	"github.com/scylladb/go-set/strset"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// StringBuilder used for string builder, and returns string
func StringBuilder(str ...string) string {
	var b strings.Builder
	for _, p := range str {
		b.WriteString(p)
	}
	return b.String() // no copying
}

// StringTitle returns the word with its first letter in upper case, "start" -> "Start"
func StringTitle(str string) string {
	return cases.Title(language.English).String(str)
}

// StringItemsFilterIntersection used for filter intersection items in the two items, and return new sorted array string
func StringItemsFilterIntersection(originItems, newItems []string) []string {
	s1 := set.NewStringSet(originItems...)
	s2 := set.NewStringSet(newItems...)
	items := strset.Intersection(s1, s2).List()
	sort.Strings(items)
	return items
}

// StringItemsFilterDifference returns the items of originItems missing from excludeItems, sorted
func StringItemsFilterDifference(originItems, excludeItems []string) []string {
	items := strset.Difference(set.NewStringSet(originItems...), set.NewStringSet(excludeItems...)).List()
	sort.Strings(items)
	return items
}

// IsContainedString used for judge items whether is contained the item, and if it's contained, return true
func IsContainedString(items []string, item string) bool {
	for _, eachItem := range items {
		if eachItem == item {
			return true
		}
	}
	return false
}

// IsPositiveInteger reports whether s is a base-10 integer greater than zero
func IsPositiveInteger(s string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return err == nil && n > 0
}

// JoinHostPort joins host and port, ipv6 hosts are bracketed
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// BytesToString used for bytes to string, reduce memory
// https://segmentfault.com/a/1190000037679588
func BytesToString(b []byte) string {
	return *(*string)(unsafe.Pointer(&b))
}

// PathNotExistOrCreate used for the filepath is whether exist, if not exist, then create
func PathNotExistOrCreate(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if os.IsNotExist(err) {
		err = os.MkdirAll(path, os.ModePerm)
		if err != nil {
			return fmt.Errorf("file dir MkdirAll failed: %v", err)
		}
		return nil
	}
	return err
}
