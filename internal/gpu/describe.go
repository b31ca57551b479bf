package gpu

import (
	"fmt"
	"io"
	"strings"
)

// Describe writes the human-readable platform and device listing.
func Describe(w io.Writer, listings []PlatformListing) error {
	if _, err := fmt.Fprintf(w, "Number of platforms: %d\n", len(listings)); err != nil {
		return err
	}
	for i, l := range listings {
		fmt.Fprintf(w, "Platform #%d/%d (%s)\n", i+1, len(listings), l.Driver)
		fmt.Fprintf(w, "\tPlatform name: %s\n", l.Info.Name)
		fmt.Fprintf(w, "\tVendor: %s\n", l.Info.Vendor)
		if l.Info.Version != "" {
			fmt.Fprintf(w, "\tVersion: %s\n", l.Info.Version)
		}
		fmt.Fprintf(w, "\tDevices: %d\n", len(l.Devices))
		for _, d := range l.Devices {
			info := d.DeviceInfo
			fmt.Fprintf(w, "\t\t%s - %s; memory size: %d mb; compute units: %d; max work-group size: %d\n",
				info.Name, info.Type, info.MemoryMB(), info.MaxComputeUnits, info.MaxWorkGroupSize)
			if len(info.Extensions) > 0 {
				fmt.Fprintf(w, "\t\t\textensions: %s\n", strings.Join(info.Extensions, " "))
			}
		}
	}
	return nil
}
