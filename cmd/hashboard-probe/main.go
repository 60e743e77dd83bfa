// hashboard-probe is a standalone bring-up diagnostic: it opens the
// USB bring-up bridge directly (bypassing Manager/HashChain) and walks
// the command channel enumerating chips, the way a bench technician
// checks a board before it's racked into a production daemon.
//
// Adapted from the teacher's cmd/monitor/main.go, which opened the
// same USB VID:PID directly with gousb and offered flags for dumping
// Bitmain RxStatus packets. Here the flags drive a chip-enumeration
// probe and optional baud/PLL program instead, since our domain
// doesn't carry the teacher's Bitmain RxStatus/TxTask wire format.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rrybarczyk/braiins/internal/config"
	"github.com/rrybarczyk/braiins/internal/hashchain"
	"github.com/rrybarczyk/braiins/internal/iocore"
	"github.com/rrybarczyk/braiins/internal/regs"
)

func main() {
	expectedChips := flag.Int("expected-chips", 0, "number of chips expected on the chain (0 = use config default)")
	baudRate := flag.Uint64("baud", hashchain.InitChipBaudRate, "command-channel baud rate to program before enumerating")
	programPLL := flag.Uint64("pll-hz", 0, "if non-zero, program the PLL to the nearest supported frequency not exceeding this")
	timeout := flag.Duration("timeout", 10*time.Second, "overall probe timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("hashboard-probe: load config: %v", err)
	}
	if *expectedChips > 0 {
		cfg.ExpectedChips = *expectedChips
	}

	log.Printf("hashboard-probe: opening USB bring-up bridge (VID:PID %04x:%04x)", iocore.USBVendorID, iocore.USBProductID)
	io, err := iocore.Open(iocore.OpenUSB)
	if err != nil {
		log.Fatalf("hashboard-probe: open backend: %v", err)
	}
	defer io.Close()
	log.Printf("hashboard-probe: backend %s ready", io.BackendName())

	deadline := time.Now().Add(*timeout)

	div, err := regs.BaudDivisor(*baudRate, cfg.BaseClockHz, cfg.BaseClockDiv)
	if err != nil {
		log.Fatalf("hashboard-probe: baud divisor: %v", err)
	}
	if err := io.WriteRegister(iocore.RegBaudDiv, uint32(div)); err != nil {
		log.Fatalf("hashboard-probe: program baud: %v", err)
	}
	log.Printf("hashboard-probe: programmed baud rate %d", *baudRate)

	if *programPLL != 0 {
		entry, ok := regs.NearestNotExceeding(regs.DefaultPLLTable, *programPLL)
		if !ok {
			log.Fatalf("hashboard-probe: no PLL entry at or below %d Hz", *programPLL)
		}
		frame := []byte{0xFD, byte(entry.Register >> 8), byte(entry.Register)}
		if err := io.WriteCommand(frame); err != nil {
			log.Fatalf("hashboard-probe: program PLL: %v", err)
		}
		log.Printf("hashboard-probe: programmed PLL frequency %d Hz (requested %d Hz)", entry.FrequencyHz, *programPLL)
	}

	found := 0
	for addr := 0; addr < cfg.ExpectedChips; addr++ {
		if time.Now().After(deadline) {
			log.Printf("hashboard-probe: timeout reached after probing %d chips", addr)
			break
		}
		if err := io.WriteCommand([]byte{byte(addr), 0xEE}); err != nil {
			log.Fatalf("hashboard-probe: enumerate chip %d: %v", addr, err)
		}
		resp, err := io.ReadCommand(1)
		if err != nil || len(resp) == 0 {
			break
		}
		found++
	}

	fmt.Printf("hashboard-probe: %d/%d chips responded\n", found, cfg.ExpectedChips)
	if found == 0 {
		os.Exit(1)
	}
}
