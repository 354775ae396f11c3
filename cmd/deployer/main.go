// Command deployer builds the poolgate binary and ships it to one or more
// gateway hosts over ssh/rsync, restarting the process and verifying it
// came back healthy.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type hostResult struct {
	host     string
	duration time.Duration
	err      error
}

func main() {
	var (
		hostsFlag    string
		keyFlag      string
		binaryFlag   string
		remoteDir    string
		portFlag     int
		parallelFlag int
		skipBuild    bool
	)

	homeDir, _ := os.UserHomeDir()

	flag.StringVar(&hostsFlag, "hosts", "", "Comma-separated list of gateway hosts")
	flag.StringVar(&keyFlag, "key", filepath.Join(homeDir, ".ssh", "poolgate.key"), "Path to SSH private key")
	flag.StringVar(&binaryFlag, "binary", "poolgate", "Path for the compiled binary")
	flag.StringVar(&remoteDir, "remote-dir", "/home/poolgate/app", "Remote deployment directory")
	flag.IntVar(&portFlag, "port", 8080, "Gateway port used for the health check")
	flag.IntVar(&parallelFlag, "parallel", 2, "Number of hosts to deploy concurrently")
	flag.BoolVar(&skipBuild, "skip-build", false, "Skip rebuilding the binary before deployment")
	flag.Parse()

	hostList := splitHosts(hostsFlag)
	if len(hostList) == 0 {
		log.Fatal("no hosts specified (use -hosts host1,host2)")
	}
	if parallelFlag < 1 {
		parallelFlag = 1
	}
	if parallelFlag > len(hostList) {
		parallelFlag = len(hostList)
	}

	if err := ensureToolExists("rsync"); err != nil {
		log.Fatalf("rsync not available: %v", err)
	}
	if err := ensureToolExists("go"); err != nil {
		log.Fatalf("go toolchain not available: %v", err)
	}
	if err := ensureFileExists(keyFlag); err != nil {
		log.Fatalf("ssh key not accessible: %v", err)
	}

	binaryPath, err := filepath.Abs(binaryFlag)
	if err != nil {
		log.Fatalf("determine binary path: %v", err)
	}

	if !skipBuild {
		if err := generateDocs(); err != nil {
			log.Fatalf("generate docs: %v", err)
		}
		if err := buildBinary(binaryPath); err != nil {
			log.Fatalf("build binary: %v", err)
		}
	} else {
		log.Printf("Skipping build step (requested via --skip-build)")
	}

	results := runDeployments(hostList, keyFlag, binaryPath, remoteDir, portFlag, parallelFlag)

	var failed int
	for _, r := range results {
		if r.err != nil {
			failed++
			log.Printf("[%s] ❌ deployment failed after %s: %v", r.host, r.duration.Truncate(time.Millisecond), r.err)
		} else {
			log.Printf("[%s] ✅ deployment completed in %s", r.host, r.duration.Truncate(time.Millisecond))
		}
	}

	if failed > 0 {
		log.Fatalf("deployment failed on %d host(s)", failed)
	}
}

func splitHosts(flagValue string) []string {
	var hosts []string
	for _, p := range strings.Split(flagValue, ",") {
		if h := strings.TrimSpace(p); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

func ensureToolExists(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("required tool %q not found in PATH", name)
	}
	return nil
}

func ensureFileExists(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func generateDocs() error {
	log.Printf("Regenerating docs/api.adoc")
	cmd := exec.Command("go", "run", "./cmd/docgen")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func buildBinary(binaryPath string) error {
	log.Printf("Building poolgate binary -> %s", binaryPath)
	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func runDeployments(hosts []string, keyPath, binaryPath, remoteDir string, port, parallel int) []hostResult {
	var (
		wg      sync.WaitGroup
		sem     = make(chan struct{}, parallel)
		results = make([]hostResult, len(hosts))
	)

	docsDir, err := filepath.Abs("docs")
	if err != nil {
		log.Fatalf("resolve docs directory: %v", err)
	}

	for idx, host := range hosts {
		wg.Add(1)
		go func(i int, h string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			err := deployHost(h, keyPath, binaryPath, docsDir, remoteDir, port)
			results[i] = hostResult{
				host:     h,
				duration: time.Since(start),
				err:      err,
			}
		}(idx, host)
	}

	wg.Wait()
	return results
}

func deployHost(host, keyPath, binaryPath, docsDir, remoteDir string, port int) error {
	logPrefix := fmt.Sprintf("[%s]", host)
	log.Printf("%s Starting deployment", logPrefix)

	remoteUser := "poolgate"
	sshTarget := fmt.Sprintf("%s@%s", remoteUser, host)

	if err := stopRemoteBinary(sshTarget, keyPath); err != nil {
		return fmt.Errorf("stop remote binary: %w", err)
	}

	// The sqlite ledger stays in place; only code and docs are replaced.
	if err := sshRun(sshTarget, keyPath, fmt.Sprintf("mkdir -p %s/docs", remoteDir), 20*time.Second); err != nil {
		return fmt.Errorf("prepare remote directories: %w", err)
	}

	if err := rsyncCopy(binaryPath, fmt.Sprintf("%s:%s/", sshTarget, remoteDir), keyPath); err != nil {
		return fmt.Errorf("rsync binary: %w", err)
	}
	if err := rsyncCopy(docsDir+"/", fmt.Sprintf("%s:%s/docs/", sshTarget, remoteDir), keyPath); err != nil {
		return fmt.Errorf("rsync docs: %w", err)
	}

	if err := sshRun(sshTarget, keyPath, fmt.Sprintf("chmod +x %s/poolgate", remoteDir), 5*time.Second); err != nil {
		return fmt.Errorf("set executable bit: %w", err)
	}

	startCmd := fmt.Sprintf("cd %s && setsid -f nohup ./poolgate > poolgate.log 2>&1 < /dev/null", remoteDir)
	if err := sshRun(sshTarget, keyPath, startCmd, 30*time.Second); err != nil {
		return fmt.Errorf("start remote binary: %w", err)
	}

	// Give the process a moment to start, then verify via the health endpoint.
	time.Sleep(2 * time.Second)
	healthCmd := fmt.Sprintf("curl -sf http://localhost:%d/api/health", port)
	if err := sshRun(sshTarget, keyPath, healthCmd, 10*time.Second); err != nil {
		log.Printf("%s Gateway not healthy. Fetching poolgate.log...", logPrefix)
		logCmd := fmt.Sprintf("tail -n 50 %s/poolgate.log", remoteDir)
		if logErr := sshRun(sshTarget, keyPath, logCmd, 5*time.Second); logErr != nil {
			log.Printf("%s Failed to fetch log: %v", logPrefix, logErr)
		}
		return fmt.Errorf("verify gateway health: %w", err)
	}

	log.Printf("%s Deployment succeeded", logPrefix)
	return nil
}

func sshRun(target, keyPath, remoteCmd string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	args := []string{
		"-i", keyPath,
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=no",
		target,
		remoteCmd,
	}

	cmd := exec.CommandContext(ctx, "ssh", args...)
	var output strings.Builder
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("ssh command timed out: %s", remoteCmd)
		}
		return fmt.Errorf("ssh error (%s): %v | output: %s", remoteCmd, err, strings.TrimSpace(output.String()))
	}
	if out := strings.TrimSpace(output.String()); out != "" {
		log.Printf("[%s] %s", target, out)
	}
	return nil
}

func rsyncCopy(src, dest, keyPath string) error {
	args := []string{
		"-az",
		"--delete",
		"--exclude=poolgate.db",
		"--exclude=poolgate.log",
		"-e", fmt.Sprintf("ssh -i %s -o BatchMode=yes -o StrictHostKeyChecking=no", keyPath),
		src,
		dest,
	}

	cmd := exec.Command("rsync", args...)
	var output strings.Builder
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("rsync output: %s | err: %w", strings.TrimSpace(output.String()), err)
	}

	if out := strings.TrimSpace(output.String()); out != "" {
		log.Printf("[rsync] %s", out)
	}
	return nil
}

func stopRemoteBinary(target, keyPath string) error {
	stopCmd := "pgrep -f 'poolgate$' >/dev/null && pkill -TERM 'poolgate$' || true"
	if err := sshRun(target, keyPath, stopCmd, 15*time.Second); err != nil {
		return err
	}

	waitCmd := "count=0; while pgrep -f 'poolgate$' >/dev/null; do if [ \"$count\" -ge 15 ]; then exit 1; fi; count=$((count+1)); sleep 1; done"
	return sshRun(target, keyPath, waitCmd, 20*time.Second)
}
