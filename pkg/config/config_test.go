// Copyright 2025 Cradlecast Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cradlecast/cradlecast-core/pkg/constants"
)

var _ = Describe("Config", func() {
	var dir string

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		Expect(os.WriteFile(path, []byte(content), 0o644)).To(Succeed())

		return path
	}

	Describe("Load", func() {
		It("should return defaults when the file does not exist", func() {
			cfg, err := Load(filepath.Join(dir, "missing.yaml"))

			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.TickInterval).To(Equal(constants.DefaultTickInterval))
			Expect(cfg.Backoff.MinDelay).To(Equal(constants.DefaultBackoffMinDelay))
			Expect(cfg.Degradation.DegradeThreshold).To(Equal(constants.DegradeThreshold))
		})

		It("should overlay file values on the defaults", func() {
			path := write("config.yaml", `
endpoint:
  host: audio.example.com
  port: 4000
backoff:
  minDelay: 2s
`)

			cfg, err := Load(path)

			Expect(err).NotTo(HaveOccurred())
			Expect(cfg.Endpoint.Host).To(Equal("audio.example.com"))
			Expect(cfg.Endpoint.Port).To(Equal(4000))
			Expect(cfg.Backoff.MinDelay).To(Equal(2 * time.Second))

			// Untouched fields keep their defaults.
			Expect(cfg.Backoff.MaxDelay).To(Equal(constants.DefaultBackoffMaxDelay))
		})

		It("should reject malformed YAML", func() {
			path := write("bad.yaml", "endpoint: [not a map")

			_, err := Load(path)

			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Validate", func() {
		It("should accept the defaults", func() {
			cfg := DefaultConfig()

			Expect(cfg.Validate()).To(Succeed())
		})

		It("should reject an empty endpoint host", func() {
			cfg := DefaultConfig()
			cfg.Endpoint.Host = ""

			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject an out-of-range port", func() {
			cfg := DefaultConfig()
			cfg.Endpoint.Port = 70000

			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject inverted backoff delays", func() {
			cfg := DefaultConfig()
			cfg.Backoff.MinDelay = 10 * time.Second
			cfg.Backoff.MaxDelay = time.Second

			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject a restore threshold at or below the degrade threshold", func() {
			cfg := DefaultConfig()
			cfg.Degradation.RestoreThreshold = cfg.Degradation.DegradeThreshold

			Expect(cfg.Validate()).NotTo(Succeed())
		})

		It("should reject a safe threshold above the degrade threshold", func() {
			cfg := DefaultConfig()
			cfg.Degradation.SafeThreshold = 90

			Expect(cfg.Validate()).NotTo(Succeed())
		})
	})
})
