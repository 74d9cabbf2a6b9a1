package apds9960

// ReadFIFO reads up to requested samples from the gesture FIFO. The count
// is silently truncated to the FIFO level reported by GFLVL, so the batch
// may be shorter than requested or empty.
func ReadFIFO(regs Registers, requested int) ([]Sample, error) {
	if requested <= 0 {
		return nil, nil
	}

	var level [1]byte
	if err := regs.ReadRegister(RegGFLvl, level[:]); err != nil {
		return nil, ioError("read fifo level", err)
	}

	n := min(requested, int(level[0]), fifoDepth)
	if n == 0 {
		return nil, nil
	}

	raw := make([]byte, n*4)
	if err := regs.ReadRegister(RegGFIFOU, raw); err != nil {
		return nil, ioError("read fifo", err)
	}

	batch := make([]Sample, n)
	for i := range batch {
		b := raw[i*4 : i*4+4]
		batch[i] = Sample{Up: b[0], Down: b[1], Left: b[2], Right: b[3]}
	}
	return batch, nil
}
