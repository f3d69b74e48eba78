// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BoncaRobot Contributors

package plugin_test

import (
	"context"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	plugins "github.com/boncarobot/boncarobot/internal/plugin"
	"github.com/boncarobot/boncarobot/pkg/pluginapi"
)

var _ = Describe("Plugin lifecycle", func() {
	var (
		e   *env
		ctx context.Context
	)

	BeforeEach(func() {
		e = newEnv(GinkgoT())
		ctx = context.Background()
		e.add(GinkgoT(), "ud", "ud")
		e.add(GinkgoT(), "w", "w")
	})

	AfterEach(func() {
		Expect(e.mgr.Close(ctx)).To(Succeed())
	})

	Describe("loading", func() {
		It("makes the plugin's commands visible", func() {
			Expect(e.mgr.Load(ctx, "ud")).To(Succeed())

			snap := e.mgr.Snapshot()
			Expect(snap).To(HaveLen(1))
			Expect(snap[0].Commands).To(HaveLen(1))
			Expect(snap[0].Commands[0].Name).To(Equal("ud"))
		})

		It("enumerates plugins in name order", func() {
			Expect(e.mgr.Load(ctx, "w")).To(Succeed())
			Expect(e.mgr.Load(ctx, "ud")).To(Succeed())

			Expect(e.mgr.Plugins()).To(Equal([]string{"ud", "w"}))
		})
	})

	Describe("unloading", func() {
		BeforeEach(func() {
			Expect(e.mgr.Load(ctx, "ud")).To(Succeed())
			e.rec.reset()
		})

		It("releases instance, then table, then module", func() {
			removed, err := e.mgr.Unload(ctx, "ud")
			Expect(err).NotTo(HaveOccurred())
			Expect(removed).To(BeTrue())

			Expect(e.stages.list()).To(Equal([]string{"ud:instance", "ud:table", "ud:module"}))
		})

		It("leaves other plugins untouched", func() {
			Expect(e.mgr.Load(ctx, "w")).To(Succeed())
			w := e.entry(GinkgoT(), "w").Instance

			_, err := e.mgr.Unload(ctx, "ud")
			Expect(err).NotTo(HaveOccurred())

			Expect(w.Call(func(pluginapi.Plugin) error { return nil })).To(Succeed())
		})
	})

	Describe("reloading", func() {
		It("constructs a fresh instance and re-registers", func() {
			Expect(e.mgr.Load(ctx, "ud")).To(Succeed())
			first := e.entry(GinkgoT(), "ud").Instance

			Expect(e.mgr.Reload(ctx, "ud")).To(Succeed())

			second := e.entry(GinkgoT(), "ud").Instance
			Expect(second).NotTo(BeIdenticalTo(first))
			Expect(first.Call(func(pluginapi.Plugin) error { return nil })).To(MatchError(plugins.ErrReleased))
		})
	})

	Describe("concurrent operations", func() {
		It("never holds two containers for one name", func() {
			var wg sync.WaitGroup
			for i := range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer GinkgoRecover()
					switch i % 4 {
					case 0:
						_ = e.mgr.Load(ctx, "ud")
					case 1:
						_ = e.mgr.Reload(ctx, "ud")
					case 2:
						_, _ = e.mgr.Unload(ctx, "ud")
					default:
						_ = e.mgr.Snapshot()
					}
				}()
			}
			wg.Wait()

			count := 0
			for _, en := range e.mgr.Snapshot() {
				if en.Name == "ud" {
					count++
				}
			}
			Expect(count).To(BeNumerically("<=", 1))
		})
	})
})
