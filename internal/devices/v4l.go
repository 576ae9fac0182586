package devices

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pilebones/go-udev/crawler"
	"github.com/pilebones/go-udev/netlink"
)

// V4LSource lists video4linux capture nodes by crawling sysfs.
type V4LSource struct {
	// DevDir is where device nodes live. Defaults to /dev.
	DevDir string
}

// Devices returns one descriptor per /dev/videoN capture node, sorted by path.
func (s V4LSource) Devices(ctx context.Context) ([]DeviceDescriptor, error) {
	devDir := s.DevDir
	if devDir == "" {
		devDir = "/dev"
	}

	queue := make(chan crawler.Device)
	errs := make(chan error, 1)
	quit := crawler.ExistingDevices(queue, errs, videoMatcher())
	return collectCameras(ctx, queue, errs, quit, devDir)
}

// collectCameras reads crawl results until the crawl ends. On return the
// crawl is told to stop and queue is drained so the crawler goroutine can
// finish its pending send and exit.
func collectCameras(ctx context.Context, queue <-chan crawler.Device, errs <-chan error, quit chan<- struct{}, devDir string) ([]DeviceDescriptor, error) {
	defer func() {
		close(quit)
		go func() {
			for range queue {
			}
		}()
	}()

	var out []DeviceDescriptor
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err := <-errs:
			return nil, err
		case dev, ok := <-queue:
			if !ok {
				sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
				return out, nil
			}
			if d, ok := cameraFromSysfs(dev.KObj, dev.Env, devDir); ok {
				out = append(out, d)
			}
		}
	}
}

func videoMatcher() netlink.Matcher {
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Env: map[string]string{"DEVNAME": `^video[0-9]+$`},
	})
	return rules
}

// cameraFromSysfs builds a descriptor from a sysfs device directory. UVC
// cameras expose a metadata node next to each capture node; only index 0 is
// a capture node.
func cameraFromSysfs(kobj string, env map[string]string, devDir string) (DeviceDescriptor, bool) {
	devname := env["DEVNAME"]
	if devname == "" {
		return DeviceDescriptor{}, false
	}
	if idx := sysfsAttr(kobj, "index"); idx != "" && idx != "0" {
		return DeviceDescriptor{}, false
	}

	path := filepath.Join(devDir, filepath.Base(devname))
	label := sysfsAttr(kobj, "name")
	if label == "" {
		label = filepath.Base(devname)
	}
	return DeviceDescriptor{
		ID:    path,
		Label: label,
		Kind:  KindCamera,
		Path:  path,
	}, true
}

func sysfsAttr(kobj, name string) string {
	data, err := os.ReadFile(filepath.Join(kobj, name))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
