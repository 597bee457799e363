// Package recipe declares the submodule graph for a minimal coreboot +
// Linux kernel + initramfs image: the worked example spec.md §2 describes,
// wired up as real *submodule.Submodule values instead of prose.
package recipe

import (
	"github.com/osresearch/linux-builder/internal/merkle"
	"github.com/osresearch/linux-builder/internal/submodule"
)

// LinuxImage builds a cross toolchain, a statically linked busybox
// userspace, a Linux kernel and coreboot, then bundles busybox into an
// initramfs coreboot's payload boots.
type LinuxImage struct{}

func (LinuxImage) Submodules() []*submodule.Submodule {
	toolchain := submodule.New("musl-cross", "11.2.1")
	toolchain.URL = "https://example.org/musl-cross-%(version)s.tar.gz"
	toolchain.TarHash = merkle.ZeroHash
	toolchain.ConfigureCmds = [][]string{{"sh", "configure", "--prefix=%(install_dir)s"}}
	toolchain.MakeCmds = [][]string{{"make", "-j%(nproc)s"}}
	toolchain.InstallCmds = [][]string{{"make", "install"}}
	toolchain.Cacheable = true

	busybox := submodule.New("busybox", "1.36.1")
	busybox.URL = "https://busybox.net/downloads/busybox-%(version)s.tar.bz2"
	busybox.ConfigFragments = []string{"configs/busybox-defconfig"}
	busybox.ConfigAppend = []string{"CONFIG_STATIC=y"}
	busybox.ConfigureCmds = [][]string{{"true"}} // config file already written by Configure
	busybox.MakeCmds = [][]string{
		{"make", "CROSS_COMPILE=%(musl-cross.bin_dir)s/musl-", "-j%(nproc)s"},
	}
	busybox.InstallCmds = [][]string{{"make", "CONFIG_PREFIX=%(install_dir)s", "install"}}
	busybox.Bins = []string{"bin/busybox"}
	busybox.Deps = []submodule.Dependency{submodule.DepDirect(toolchain)}
	busybox.Cacheable = true
	busybox.ReportHashes = true

	kernel := submodule.New("linux", "6.6.8")
	kernel.URL = "https://cdn.kernel.org/pub/linux/kernel/v6.x/linux-%(version)s.tar.xz"
	kernel.ConfigFragments = []string{"configs/kernel-defconfig"}
	kernel.ConfigureCmds = [][]string{
		{"make", "ARCH=x86", "CROSS_COMPILE=%(musl-cross.bin_dir)s/musl-", "olddefconfig"},
	}
	kernel.MakeCmds = [][]string{
		{"make", "ARCH=x86", "CROSS_COMPILE=%(musl-cross.bin_dir)s/musl-", "-j%(nproc)s", "bzImage"},
	}
	kernel.InstallCmds = [][]string{
		{"install", "-D", "arch/x86/boot/bzImage", "%(install_dir)s/bzImage"},
	}
	kernel.Bins = []string{"bzImage"}
	kernel.Deps = []submodule.Dependency{submodule.DepDirect(toolchain)}
	kernel.Cacheable = true

	initrdSub := submodule.New("initrd", "1")
	initrdSub.Deps = []submodule.Dependency{submodule.DepDirect(busybox)}
	initrdSub.Variant = &submodule.Initrd{
		// busybox.Bins copies busybox.install_dir's declared binaries into
		// /bin automatically (Initrd.Build's dependency walk); only the
		// entries that have no dependency-declared equivalent need listing
		// explicitly here.
		Dirs: []string{"/bin", "/dev", "/proc", "/sys"},
		Symlinks: map[string]string{
			"/bin/sh":     "busybox",
			"/init":       "bin/busybox",
			"/bin/mount":  "busybox",
			"/bin/switch": "busybox",
		},
		Devices: []submodule.DeviceNode{
			{Path: "/dev/console", Major: 5, Minor: 1, Mode: 0600},
			{Path: "/dev/null", Major: 1, Minor: 3, Mode: 0666},
		},
		Compress: true,
	}
	initrdSub.InstallCmds = [][]string{
		{"cp", "%(out_dir)s/initrd.cpio.xz", "%(install_dir)s/initrd.cpio.xz"},
	}
	initrdSub.Cacheable = true

	coreboot := submodule.New("coreboot", "4.22")
	coreboot.GitURL = "https://review.coreboot.org/coreboot.git"
	coreboot.GitCommit = "4.22"
	coreboot.ConfigFragments = []string{"configs/coreboot-defconfig"}
	coreboot.ConfigAppend = []string{
		"CONFIG_PAYLOAD_LINUX=y",
		"CONFIG_LINUX_INITRD=\"%(initrd.install_dir)s/initrd.cpio.xz\"",
		"CONFIG_PAYLOAD_FILE=\"%(linux.install_dir)s/bzImage\"",
	}
	coreboot.ConfigureCmds = [][]string{{"make", "olddefconfig"}}
	coreboot.MakeCmds = [][]string{{"make", "-j%(nproc)s"}}
	coreboot.InstallCmds = [][]string{
		{"install", "-D", "build/coreboot.rom", "%(install_dir)s/coreboot.rom"},
	}
	coreboot.Bins = []string{"coreboot.rom"}
	coreboot.Deps = []submodule.Dependency{
		submodule.DepDirect(kernel),
		submodule.DepDirect(initrdSub),
	}
	coreboot.ReportHashes = true

	return []*submodule.Submodule{toolchain, busybox, kernel, initrdSub, coreboot}
}
