package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Gurux/gxcommon-go"
	"github.com/Gurux/gxrsp-go"
	"github.com/ergochat/readline"
	"golang.org/x/text/language"
)

var (
	hosts     = flag.String("h", "", "Connections, one host:port per core, separated by commas.")
	arch      = flag.String("a", "x86", "Target architecture: x86, amd64, arm32 or arm64.")
	multiCore = flag.Bool("multicore", false, "Race run and step commands across every connection.")
	t         = flag.String("t", "", "Trace level.")
	lang      = flag.String("lang", "", "Used language.")
)

func CurrentLanguage() language.Tag {
	langEnv := os.Getenv("LANG")
	if langEnv == "" {
		return language.AmericanEnglish
	}
	langEnv = strings.Split(langEnv, ".")[0]
	tag, err := language.Parse(langEnv)
	if err != nil {
		return language.AmericanEnglish
	}
	return tag
}

func parseAddress(value string) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(value, "0x"), 16, 64)
}

func main() {
	flag.Parse()
	if *hosts == "" {
		flag.PrintDefaults()
		return
	}

	architecture, err := gxrsp.ArchitectureParse(*arch)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	settings := gxrsp.NewGXSettings(strings.Split(*hosts, ","), architecture)
	settings.MultiCore = *multiCore

	target, err := gxrsp.NewGXController(settings)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	if *lang != "" {
		tag, err := language.Parse(*lang)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error parsing language:", err)
			return
		}
		target.Localize(tag)
	}

	target.SetOnError(func(m gxcommon.IGXMedia, err error) {
		fmt.Fprintln(os.Stderr, "error:", err)
	})

	target.SetOnMediaStateChange(func(m gxcommon.IGXMedia, e gxcommon.MediaStateEventArgs) {
		fmt.Printf("Media state change : %s\n", e.State().String())
	})

	target.SetOnTrace(func(m gxcommon.IGXMedia, e gxcommon.TraceEventArgs) {
		fmt.Printf("Trace: %s\n", e.String())
	})

	if *t != "" {
		tl, err := gxcommon.TraceLevelParse(*t)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return
		}
		if err = target.SetTrace(tl); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return
		}
	}
	fmt.Printf("Connections: %s\n", *hosts)
	fmt.Printf("Architecture: %s\n", architecture.String())

	if err = target.Open(); err != nil {
		fmt.Fprintln(os.Stderr, "error returned:", err)
		return
	}
	defer func() {
		if err := target.Close(); err != nil {
			fmt.Fprintln(os.Stderr, "close failed:", err)
		}
	}()

	rl, err := readline.NewFromConfig(&readline.Config{
		Prompt: "rsp> ",
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	defer rl.Close()

	fmt.Println("Type help for the command list, quit to exit.")
	for {
		line, err := rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			return
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rl.SaveToHistory(line)
		if line == "quit" || line == "exit" {
			return
		}
		if err := execute(target, strings.Fields(line)); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}
}

func execute(target *gxrsp.GXController, args []string) error {
	switch args[0] {
	case "help":
		fmt.Println(`regs                    read every register
reg <name>              read one register
setreg <name> <hex>     write one register
read <addr> <count>     read memory bytes
write <addr> <hex>      write memory bytes
break <addr>            set a code breakpoint, prints the slot
delete <slot>           remove a code breakpoint
watch <addr> <count>    set an access watchpoint, prints the slot
unwatch <slot>          remove a watchpoint
step                    single step
continue                resume and wait for the halt
halt                    interrupt a running target
status                  query why the target halted
cores                   report the processor count
monitor <text...>       forward a command to the stub
restart                 restart the target program
quit                    exit`)
	case "regs":
		values, err := target.QueryAllRegisters(target.GetLastKnownActiveCpu())
		if err != nil {
			return err
		}
		for _, name := range registerNames(values) {
			fmt.Printf("%-8s %s\n", name, values[name])
		}
	case "reg":
		if len(args) != 2 {
			return fmt.Errorf("usage: reg <name>")
		}
		values, err := target.QueryRegisterValues(target.GetLastKnownActiveCpu(), []string{args[1]})
		if err != nil {
			return err
		}
		fmt.Printf("%s = %#x\n", args[1], values[args[1]])
	case "setreg":
		if len(args) != 3 {
			return fmt.Errorf("usage: setreg <name> <hex>")
		}
		value, err := parseAddress(args[2])
		if err != nil {
			return err
		}
		return target.SetRegisterValues(target.GetLastKnownActiveCpu(), map[string]uint64{args[1]: value})
	case "read":
		if len(args) != 3 {
			return fmt.Errorf("usage: read <addr> <count>")
		}
		addr, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		count, err := strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		data, err := target.ReadMemory(addr, count, gxrsp.MemoryTypeData)
		if err != nil {
			return err
		}
		fmt.Printf("%x\n", data)
	case "write":
		if len(args) != 3 {
			return fmt.Errorf("usage: write <addr> <hex>")
		}
		addr, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		data := make([]byte, 0, len(args[2])/2)
		for i := 0; i+1 < len(args[2]); i += 2 {
			b, err := strconv.ParseUint(args[2][i:i+2], 16, 8)
			if err != nil {
				return err
			}
			data = append(data, byte(b))
		}
		return target.WriteMemory(addr, data, gxrsp.MemoryTypeData)
	case "break":
		if len(args) != 2 {
			return fmt.Errorf("usage: break <addr>")
		}
		addr, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		slot, err := target.CreateCodeBreakpoint(addr)
		if err != nil {
			return err
		}
		fmt.Printf("breakpoint %d at %#x\n", slot, addr)
	case "delete":
		if len(args) != 2 {
			return fmt.Errorf("usage: delete <slot>")
		}
		slot, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		return target.DeleteCodeBreakpoint(slot)
	case "watch":
		if len(args) != 3 {
			return fmt.Errorf("usage: watch <addr> <count>")
		}
		addr, err := parseAddress(args[1])
		if err != nil {
			return err
		}
		count, err := strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		slot, err := target.CreateDataBreakpoint(addr, count, gxrsp.BreakpointAccessReadWrite)
		if err != nil {
			return err
		}
		fmt.Printf("watchpoint %d at %#x\n", slot, addr)
	case "unwatch":
		if len(args) != 2 {
			return fmt.Errorf("usage: unwatch <slot>")
		}
		slot, err := strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		return target.DeleteDataBreakpoint(slot)
	case "step":
		return run(target, "s")
	case "continue":
		return run(target, "c")
	case "halt":
		ok, err := target.HandleInterruptTarget()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("interrupt not confirmed")
			return nil
		}
		fmt.Printf("halted on core %d\n", target.GetLastKnownActiveCpu())
	case "status":
		e, err := target.ReportReasonTargetHalted()
		if err != nil {
			return err
		}
		printStop(e)
	case "cores":
		n, err := target.GetProcessorCount()
		if err != nil {
			return err
		}
		fmt.Printf("%d cores\n", n)
	case "monitor":
		if len(args) < 2 {
			return fmt.Errorf("usage: monitor <text...>")
		}
		out, err := target.MonitorCommand(strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		fmt.Print(out)
		if out != "" && !strings.HasSuffix(out, "\n") {
			fmt.Println()
		}
	case "restart":
		return target.RestartTarget()
	default:
		return fmt.Errorf("unknown command %q, try help", args[0])
	}
	return nil
}

// run starts the command in the background and waits for the stop reply so
// the prompt returns with the halt reason printed.
func run(target *gxrsp.GXController, command string) error {
	if err := target.StartAsynchronousCommand(command, true); err != nil {
		return err
	}
	for {
		reply, done, err := target.GetAsynchronousCommandResult(time.Second)
		if err != nil {
			return err
		}
		if done {
			fmt.Printf("stopped: %s\n", reply)
			return nil
		}
		fmt.Println("running... (use Ctrl-C and halt to interrupt)")
	}
}

func printStop(e gxrsp.StopReplyEvent) {
	switch {
	case e.IsCoreRunning:
		fmt.Println("target is running")
	case e.IsWPacket:
		fmt.Printf("process exited with status %d\n", e.Reason)
	case e.IsPowerDown:
		fmt.Println("target powered down")
	case e.IsParsed:
		fmt.Printf("halted with signal %d", e.Reason)
		if e.IsThreadFound {
			fmt.Printf(" on core %d", e.ProcessorNumber)
		}
		if e.IsPcRegFound {
			fmt.Printf(" at %#x", e.CurrentAddress)
		}
		fmt.Println()
	default:
		fmt.Printf("unparsed stop reply %q\n", e.Raw)
	}
}

func registerNames(values map[string]string) []string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
